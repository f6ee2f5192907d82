// Package backoff provides retry delay strategies for provider calls.
package backoff

import (
	"context"
	"time"
)

type Strategy struct {
	Delays []time.Duration
}

var (
	// None performs retries back to back. Used in tests and by callers that
	// already rate-limit the provider.
	None = Strategy{}

	Quick = Strategy{
		Delays: []time.Duration{
			250 * time.Millisecond,
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
		},
	}

	Standard = Strategy{
		Delays: []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
		},
	}
)

// DelayFor returns the delay to wait after the given 1-based failed attempt.
// Attempts beyond the configured schedule reuse the last delay.
func (s Strategy) DelayFor(attempt int) time.Duration {
	if len(s.Delays) == 0 || attempt <= 0 {
		return 0
	}
	if attempt > len(s.Delays) {
		return s.Delays[len(s.Delays)-1]
	}
	return s.Delays[attempt-1]
}

// Sleep waits for the delay of the given attempt, returning early with the
// context error if the context is cancelled.
func (s Strategy) Sleep(ctx context.Context, attempt int) error {
	d := s.DelayFor(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
