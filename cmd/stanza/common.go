package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/longregen/stanza/internal/backoff"
	"github.com/longregen/stanza/internal/config"
	"github.com/longregen/stanza/pkg/engine"
	"github.com/longregen/stanza/pkg/llm"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Shared global variables
var (
	cfg      *config.Config
	provider *llm.Client
)

// initProvider builds the shared LLM client from the loaded configuration.
func initProvider() {
	provider = llm.NewClient(
		cfg.LLM.URL,
		cfg.LLM.APIKey,
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	)
}

// initTracing installs the stdout span exporter when STANZA_TRACE_STDOUT is
// set. The returned shutdown flushes pending spans.
func initTracing() (func(), error) {
	if !cfg.TraceStdout {
		return func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

// newEngine builds the engine used by CLI commands. When STANZA_METRICS_ADDR
// is set, the engine's aggregate counters are registered with prometheus and
// served on /metrics for the life of the command. The returned stop function
// shuts the metrics listener down.
func newEngine() (*engine.Engine, func()) {
	opts := []engine.Option{engine.WithBackoff(backoff.Standard)}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		agg := engine.NewAggregateWithRegistry(prometheus.DefaultRegisterer)
		opts = append(opts, engine.WithAggregate(agg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	stop := func() {
		if srv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return engine.New(provider, opts...), stop
}

// defaultParams maps the configured LLM settings to request parameters.
func defaultParams() llm.Params {
	return llm.Params{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: llm.Float32Ptr(float32(cfg.LLM.Temperature)),
	}
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
