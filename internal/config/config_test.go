package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.URL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.Budget.MaxRetries)
	assert.Equal(t, 25, cfg.Budget.MaxTotalCalls)
	assert.Equal(t, 8, cfg.Optimizer.Rounds)
	assert.False(t, cfg.TraceStdout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STANZA_LLM_URL", "http://localhost:4000/v1")
	t.Setenv("STANZA_LLM_MODEL", "qwen3-32b")
	t.Setenv("STANZA_MAX_TOTAL_CALLS", "7")
	t.Setenv("STANZA_OPTIMIZER_EXPLORATION", "0.9")
	t.Setenv("STANZA_TRACE_STDOUT", "true")
	t.Setenv("STANZA_METRICS_ADDR", ":9121")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000/v1", cfg.LLM.URL)
	assert.Equal(t, "qwen3-32b", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Budget.MaxTotalCalls)
	assert.InDelta(t, 0.9, cfg.Optimizer.Exploration, 0.001)
	assert.True(t, cfg.TraceStdout)
	assert.Equal(t, ":9121", cfg.MetricsAddr)
}

func TestLoadRejectsBadMaxTokens(t *testing.T) {
	t.Setenv("STANZA_LLM_MAX_TOKENS", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("STANZA_TEST_INT", "not-a-number")
	assert.Equal(t, 42, GetEnvInt("STANZA_TEST_INT", 42))

	t.Setenv("STANZA_TEST_BOOL", "1")
	assert.True(t, GetEnvBool("STANZA_TEST_BOOL", false))

	assert.Equal(t, "fallback", GetEnv("STANZA_TEST_UNSET", "fallback"))
}
