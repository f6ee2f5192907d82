// Package program provides the immutable declaration of a multi-step AI-call
// workflow: an ordered list of steps, each with a control policy, plus default
// work budgets. A Program is built once and may be invoked many times.
package program

import (
	"github.com/longregen/stanza/pkg/llm"
)

// Policy selects the control wrapper that governs how a step is re-attempted.
type Policy int

const (
	// PolicyNone makes a single provider call with no re-attempts.
	PolicyNone Policy = iota
	// PolicyRetry re-invokes on hard provider failure with the same request.
	PolicyRetry
	// PolicySuggest re-invokes with injected feedback while a soft predicate
	// fails; exhaustion degrades to a warning.
	PolicySuggest
	// PolicyAssert re-invokes with injected feedback while a hard predicate
	// fails; exhaustion terminates the invocation.
	PolicyAssert
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyRetry:
		return "retry"
	case PolicySuggest:
		return "suggest"
	case PolicyAssert:
		return "assert"
	default:
		return "unknown"
	}
}

// Predicate checks a candidate response against the conversation that produced
// it. Used by suggest and assert steps.
type Predicate func(resp llm.Message, conv llm.Conversation) bool

// FeedbackFunc renders the feedback message appended to the conversation
// before a suggest/assert re-attempt.
type FeedbackFunc func(resp llm.Message) string

// Step is one declared AI-call site.
type Step struct {
	ID     string
	Prompt string // template text; {{name}} slots are filled from invocation args
	Params llm.Params
	Policy Policy

	// Limit bounds the policy's work for this step: additional retries for
	// PolicyRetry, total attempts for PolicySuggest/PolicyAssert. Zero means
	// inherit the budget default.
	Limit int

	Predicate Predicate
	Feedback  FeedbackFunc
}

// BudgetConfig limits the work one invocation may perform. MaxRetries,
// MaxSuggests and MaxAsserts are per-step defaults for steps that declare no
// Limit; MaxTotalCalls caps provider calls across the whole invocation.
type BudgetConfig struct {
	MaxRetries    int
	MaxSuggests   int
	MaxAsserts    int
	MaxTotalCalls int
}

// DefaultBudget returns the budget used when a program declares none.
func DefaultBudget() BudgetConfig {
	return BudgetConfig{
		MaxRetries:    2,
		MaxSuggests:   3,
		MaxAsserts:    3,
		MaxTotalCalls: 25,
	}
}

// merged fills zero fields from the defaults.
func (c BudgetConfig) merged(defaults BudgetConfig) BudgetConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.MaxSuggests == 0 {
		c.MaxSuggests = defaults.MaxSuggests
	}
	if c.MaxAsserts == 0 {
		c.MaxAsserts = defaults.MaxAsserts
	}
	if c.MaxTotalCalls == 0 {
		c.MaxTotalCalls = defaults.MaxTotalCalls
	}
	return c
}

// Merged fills zero fields of override from the program's budget. Used by the
// engine to resolve per-invocation keyword overrides.
func Merged(override, base BudgetConfig) BudgetConfig {
	return override.merged(base)
}

// Program is an immutable ordered step sequence with default configuration.
type Program struct {
	id      string
	name    string
	params  []string
	steps   []Step
	returns []string
	budget  BudgetConfig
}

func (p *Program) ID() string   { return p.id }
func (p *Program) Name() string { return p.name }

// Params returns the declared parameter names in declaration order.
func (p *Program) Params() []string {
	return append([]string(nil), p.params...)
}

// Steps returns a copy of the step list in declaration order.
func (p *Program) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// Returns lists the step IDs whose outputs form the program result. The last
// entry is the primary output.
func (p *Program) Returns() []string {
	return append([]string(nil), p.returns...)
}

// Budget returns the program's default budget.
func (p *Program) Budget() BudgetConfig { return p.budget }
