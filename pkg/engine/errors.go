package engine

import (
	"fmt"

	"github.com/longregen/stanza/pkg/llm"
)

// RetriesExhaustedError terminates an invocation when a retry step's provider
// calls failed on every allowed attempt.
type RetriesExhaustedError struct {
	StepID   string
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("step %q: retries exhausted after %d attempts: %v", e.StepID, e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.LastErr }

// CallFailureError terminates an invocation when a suggest/assert step hits a
// hard provider failure, which those controllers do not absorb.
type CallFailureError struct {
	StepID  string
	Attempt int
	Err     error
}

func (e *CallFailureError) Error() string {
	return fmt.Sprintf("step %q: provider call failed on attempt %d: %v", e.StepID, e.Attempt, e.Err)
}

func (e *CallFailureError) Unwrap() error { return e.Err }

// AssertExhaustedError terminates an invocation when an assert step's
// predicate failed on every allowed attempt. The final conversation is carried
// so the failure can be diagnosed without re-running.
type AssertExhaustedError struct {
	StepID       string
	Attempts     int
	Conversation llm.Conversation
}

func (e *AssertExhaustedError) Error() string {
	return fmt.Sprintf("step %q: assertion not satisfied after %d attempts", e.StepID, e.Attempts)
}

// BudgetExceededError terminates an invocation when the cumulative provider
// call count reaches the configured ceiling with steps still pending.
type BudgetExceededError struct {
	StepID string // last completed step
	Calls  int
	Limit  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("total call budget exceeded after step %q: %d calls, limit %d", e.StepID, e.Calls, e.Limit)
}
