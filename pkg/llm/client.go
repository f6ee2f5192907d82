// Package llm provides the provider contract and an OpenAI-compatible client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.GetTracerProvider().Tracer("stanza/llm")

// ErrEmptyResponse is returned when the provider answers with no choices or
// empty content. It counts as a hard call failure for retry purposes.
var ErrEmptyResponse = errors.New("provider returned no choices")

// Config holds the configuration for the LLM client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Option configures a Config.
type Option func(*Config)

// WithModel sets the default model for chat completions.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithMaxTokens sets the default max tokens for completions.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
// This is ignored if WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// Client is an OpenAI-compatible Provider implementation.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
}

// NewClient creates an OpenAI-compatible client. BaseURL should be the full
// API base URL (e.g., "https://api.openai.com/v1").
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	cfg := &Config{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		APIKey:    apiKey,
		Model:     "gpt-4o-mini",
		MaxTokens: 2048,
		Timeout:   60 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	openaiCfg.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		openaiCfg.HTTPClient = cfg.HTTPClient
	} else {
		openaiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:       openai.NewClientWithConfig(openaiCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Generate sends the conversation to the provider and returns the assistant's
// reply, wrapped in an OTel client span.
func (c *Client) Generate(ctx context.Context, conv Conversation, p Params) (Message, error) {
	ctx, span := tracer.Start(ctx, "llm.chat", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	model := c.model
	if p.Model != "" {
		model = p.Model
	}
	maxTokens := c.maxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}

	msgs := make([]openai.ChatCompletionMessage, len(conv))
	for i, m := range conv {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if p.Temperature != nil {
		req.Temperature = *p.Temperature
	}

	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.request.max_tokens", req.MaxTokens),
		attribute.Int("llm.request.messages", len(req.Messages)),
	)
	if p.Temperature != nil {
		span.SetAttributes(attribute.Float64("llm.request.temperature", float64(*p.Temperature)))
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		span.SetAttributes(attribute.Int("llm.response.choices", len(resp.Choices)))
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return Message{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.output_tokens", resp.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", resp.Usage.TotalTokens),
		attribute.String("llm.response.finish_reason", string(choice.FinishReason)),
		attribute.Int("llm.response.content_length", len(choice.Message.Content)),
	)

	return Message{Role: RoleAssistant, Content: choice.Message.Content}, nil
}
