package config

import (
	"fmt"
	"net/url"
)

// Config holds all configuration for stanza.
type Config struct {
	LLM       LLMConfig
	Budget    BudgetConfig
	Optimizer OptimizerConfig
	// TraceStdout enables the stdout OTel trace exporter in the CLI.
	TraceStdout bool
	// MetricsAddr, when set, serves prometheus metrics on this address.
	MetricsAddr string
}

// LLMConfig holds the provider API configuration (any OpenAI-compatible endpoint).
type LLMConfig struct {
	URL            string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
}

// BudgetConfig holds the default per-invocation work limits.
type BudgetConfig struct {
	MaxRetries    int
	MaxSuggests   int
	MaxAsserts    int
	MaxTotalCalls int
}

// OptimizerConfig holds the default prompt-search parameters.
type OptimizerConfig struct {
	Rounds      int
	Parallelism int
	Exploration float64
}

// Load reads configuration from STANZA_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LLM: LLMConfig{
			URL:            GetEnv("STANZA_LLM_URL", "https://api.openai.com/v1"),
			APIKey:         GetEnv("STANZA_LLM_API_KEY", ""),
			Model:          GetEnv("STANZA_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:      GetEnvInt("STANZA_LLM_MAX_TOKENS", 2048),
			Temperature:    GetEnvFloat("STANZA_LLM_TEMPERATURE", 0.2),
			TimeoutSeconds: GetEnvInt("STANZA_LLM_TIMEOUT_SECONDS", 60),
		},
		Budget: BudgetConfig{
			MaxRetries:    GetEnvInt("STANZA_MAX_RETRIES", 2),
			MaxSuggests:   GetEnvInt("STANZA_MAX_SUGGESTS", 3),
			MaxAsserts:    GetEnvInt("STANZA_MAX_ASSERTS", 3),
			MaxTotalCalls: GetEnvInt("STANZA_MAX_TOTAL_CALLS", 25),
		},
		Optimizer: OptimizerConfig{
			Rounds:      GetEnvInt("STANZA_OPTIMIZER_ROUNDS", 8),
			Parallelism: GetEnvInt("STANZA_OPTIMIZER_PARALLELISM", 2),
			Exploration: GetEnvFloat("STANZA_OPTIMIZER_EXPLORATION", 1.4),
		},
		TraceStdout: GetEnvBool("STANZA_TRACE_STDOUT", false),
		MetricsAddr: GetEnv("STANZA_METRICS_ADDR", ""),
	}

	if _, err := url.Parse(cfg.LLM.URL); err != nil {
		return nil, fmt.Errorf("invalid STANZA_LLM_URL: %w", err)
	}
	if cfg.LLM.MaxTokens <= 0 {
		return nil, fmt.Errorf("STANZA_LLM_MAX_TOKENS must be positive, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Optimizer.Parallelism < 1 {
		cfg.Optimizer.Parallelism = 1
	}

	return cfg, nil
}
