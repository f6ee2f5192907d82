package engine

import (
	"github.com/longregen/stanza/pkg/program"
)

// Kind classifies a unit of charged work.
type Kind int

const (
	// KindCall is one provider call of any flavor.
	KindCall Kind = iota
	// KindRetry is a re-invocation after a hard failure.
	KindRetry
	// KindSuggest is a feedback-driven re-invocation of a suggest step.
	KindSuggest
	// KindAssert is a feedback-driven re-invocation of an assert step.
	KindAssert
)

// Budget tracks cumulative work for the life of one invocation. Controllers
// charge it per attempt; the engine consults Exhausted at step boundaries, so
// detection may lag a completed step by design.
//
// A Budget belongs to exactly one invocation and is not safe for concurrent
// use; concurrent invocations each own their own.
type Budget struct {
	limits   program.BudgetConfig
	calls    int
	retries  int
	suggests int
	asserts  int
}

func newBudget(limits program.BudgetConfig) *Budget {
	return &Budget{limits: limits}
}

// Charge records one unit of work. Every retry/suggest/assert re-attempt is
// also a call, so controllers charge KindCall separately per provider call.
func (b *Budget) Charge(kind Kind) {
	switch kind {
	case KindCall:
		b.calls++
	case KindRetry:
		b.retries++
	case KindSuggest:
		b.suggests++
	case KindAssert:
		b.asserts++
	}
}

// Exhausted reports whether no total-call capacity remains for further steps.
func (b *Budget) Exhausted() bool {
	return b.limits.MaxTotalCalls > 0 && b.calls >= b.limits.MaxTotalCalls
}

// Limits returns the configured ceilings.
func (b *Budget) Limits() program.BudgetConfig { return b.limits }

func (b *Budget) Calls() int    { return b.calls }
func (b *Budget) Retries() int  { return b.retries }
func (b *Budget) Suggests() int { return b.suggests }
func (b *Budget) Asserts() int  { return b.asserts }

// limitFor resolves a step's attempt bound: the step's own limit when set,
// otherwise the per-policy default.
func (b *Budget) limitFor(s program.Step) int {
	if s.Limit > 0 {
		return s.Limit
	}
	switch s.Policy {
	case program.PolicyRetry:
		return b.limits.MaxRetries
	case program.PolicySuggest:
		return b.limits.MaxSuggests
	case program.PolicyAssert:
		return b.limits.MaxAsserts
	default:
		return 0
	}
}
