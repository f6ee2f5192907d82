package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/longregen/stanza/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stanza",
		Short: "Stanza - declarative LLM program runner",
		Long: `Stanza executes declared multi-step LLM programs with retry, suggest
and assert controllers, and searches prompt-template structure against a
scored dataset.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			initProvider()
			return nil
		},
	}

	rootCmd.AddCommand(
		runCmd(),
		optimizeCmd(),
		traceCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("LLM:")
			fmt.Printf("  URL:         %s\n", cfg.LLM.URL)
			fmt.Printf("  Model:       %s\n", cfg.LLM.Model)
			fmt.Printf("  Max Tokens:  %d\n", cfg.LLM.MaxTokens)
			fmt.Printf("  Temperature: %.2f\n", cfg.LLM.Temperature)
			fmt.Printf("  Timeout:     %ds\n", cfg.LLM.TimeoutSeconds)
			fmt.Printf("  API Key:     %s\n", maskSecret(cfg.LLM.APIKey))
			fmt.Println()

			fmt.Println("Budget defaults:")
			fmt.Printf("  Max Retries:     %d\n", cfg.Budget.MaxRetries)
			fmt.Printf("  Max Suggests:    %d\n", cfg.Budget.MaxSuggests)
			fmt.Printf("  Max Asserts:     %d\n", cfg.Budget.MaxAsserts)
			fmt.Printf("  Max Total Calls: %d\n", cfg.Budget.MaxTotalCalls)
			fmt.Println()

			fmt.Println("Optimizer:")
			fmt.Printf("  Rounds:      %d\n", cfg.Optimizer.Rounds)
			fmt.Printf("  Parallelism: %d\n", cfg.Optimizer.Parallelism)
			fmt.Printf("  Exploration: %.2f\n", cfg.Optimizer.Exploration)
			fmt.Println()

			fmt.Printf("Trace to stdout: %v\n", cfg.TraceStdout)
			if cfg.MetricsAddr != "" {
				fmt.Printf("Metrics address: %s\n", cfg.MetricsAddr)
			} else {
				fmt.Println("Metrics address: (disabled)")
			}
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  STANZA_LLM_URL, STANZA_LLM_API_KEY, STANZA_LLM_MODEL")
			fmt.Println("  STANZA_LLM_MAX_TOKENS, STANZA_LLM_TEMPERATURE, STANZA_LLM_TIMEOUT_SECONDS")
			fmt.Println("  STANZA_MAX_RETRIES, STANZA_MAX_SUGGESTS, STANZA_MAX_ASSERTS, STANZA_MAX_TOTAL_CALLS")
			fmt.Println("  STANZA_OPTIMIZER_ROUNDS, STANZA_OPTIMIZER_PARALLELISM, STANZA_OPTIMIZER_EXPLORATION")
			fmt.Println("  STANZA_TRACE_STDOUT, STANZA_METRICS_ADDR")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stanza %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
