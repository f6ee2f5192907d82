package llm

import "context"

// Params tunes a single provider call. The zero value uses the client defaults.
type Params struct {
	Model       string
	Temperature *float32
	MaxTokens   int
}

// Provider is the narrow capability the execution engine depends on: send a
// conversation, get back the assistant's next message or a hard failure.
// Implementations must be safe for concurrent use.
type Provider interface {
	Generate(ctx context.Context, conv Conversation, p Params) (Message, error)
}

// Float32Ptr is a convenience for Params.Temperature.
func Float32Ptr(f float32) *float32 { return &f }
