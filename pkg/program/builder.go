package program

import (
	"fmt"
	"regexp"

	"github.com/longregen/stanza/internal/id"
	"github.com/longregen/stanza/pkg/llm"
)

var placeholderRe = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Builder registers steps into an ordered list at construction time.
//
//	prog, err := program.New("qa").
//		Params("context", "question").
//		Assert("answer", tpl, nonEmpty, askAgain, 2).
//		Build()
type Builder struct {
	name    string
	params  []string
	steps   []Step
	returns []string
	budget  BudgetConfig
}

// New starts a program declaration.
func New(name string) *Builder {
	return &Builder{name: name, budget: DefaultBudget()}
}

// Params declares the program's invocation parameters.
func (b *Builder) Params(names ...string) *Builder {
	b.params = append(b.params, names...)
	return b
}

// Budget overrides the default budget; zero fields keep their defaults.
func (b *Builder) Budget(cfg BudgetConfig) *Builder {
	b.budget = cfg.merged(DefaultBudget())
	return b
}

// Step adds a plain step: one provider call, no re-attempts.
func (b *Builder) Step(stepID, promptTmpl string) *Builder {
	b.steps = append(b.steps, Step{ID: stepID, Prompt: promptTmpl, Policy: PolicyNone})
	return b
}

// Retry adds a step re-invoked on hard failure up to maxRetries extra times.
// maxRetries zero inherits the budget default.
func (b *Builder) Retry(stepID, promptTmpl string, maxRetries int) *Builder {
	b.steps = append(b.steps, Step{ID: stepID, Prompt: promptTmpl, Policy: PolicyRetry, Limit: maxRetries})
	return b
}

// Suggest adds a soft-checked step. While pred fails and attempts remain, the
// feedback message is appended to the conversation and the call repeated.
func (b *Builder) Suggest(stepID, promptTmpl string, pred Predicate, feedback FeedbackFunc, maxAttempts int) *Builder {
	b.steps = append(b.steps, Step{
		ID: stepID, Prompt: promptTmpl, Policy: PolicySuggest,
		Limit: maxAttempts, Predicate: pred, Feedback: feedback,
	})
	return b
}

// Assert adds a hard-checked step. Exhausting the predicate budget terminates
// the whole invocation.
func (b *Builder) Assert(stepID, promptTmpl string, pred Predicate, feedback FeedbackFunc, maxAttempts int) *Builder {
	b.steps = append(b.steps, Step{
		ID: stepID, Prompt: promptTmpl, Policy: PolicyAssert,
		Limit: maxAttempts, Predicate: pred, Feedback: feedback,
	})
	return b
}

// WithParams sets provider parameters on the most recently added step.
func (b *Builder) WithParams(p llm.Params) *Builder {
	if len(b.steps) > 0 {
		b.steps[len(b.steps)-1].Params = p
	}
	return b
}

// Returns declares which step outputs form the program result. Defaults to
// the last step.
func (b *Builder) Returns(stepIDs ...string) *Builder {
	b.returns = append(b.returns, stepIDs...)
	return b
}

// Build validates the declaration and freezes it into a Program.
func (b *Builder) Build() (*Program, error) {
	if b.name == "" {
		return nil, fmt.Errorf("program name is required")
	}
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("program %q declares no steps", b.name)
	}

	declared := make(map[string]bool, len(b.params))
	for _, p := range b.params {
		if declared[p] {
			return nil, fmt.Errorf("program %q declares parameter %q twice", b.name, p)
		}
		declared[p] = true
	}

	stepIDs := make(map[string]bool, len(b.steps))
	for _, s := range b.steps {
		if s.ID == "" {
			return nil, fmt.Errorf("program %q has a step with an empty id", b.name)
		}
		if stepIDs[s.ID] {
			return nil, fmt.Errorf("program %q declares step %q twice", b.name, s.ID)
		}
		stepIDs[s.ID] = true

		if s.Policy == PolicySuggest || s.Policy == PolicyAssert {
			if s.Predicate == nil {
				return nil, fmt.Errorf("step %q uses %s policy but has no predicate", s.ID, s.Policy)
			}
		}
		if s.Limit < 0 {
			return nil, fmt.Errorf("step %q has negative limit %d", s.ID, s.Limit)
		}

		for _, m := range placeholderRe.FindAllStringSubmatch(s.Prompt, -1) {
			if !declared[m[1]] {
				return nil, fmt.Errorf("step %q references undeclared parameter %q", s.ID, m[1])
			}
		}
	}

	returns := b.returns
	if len(returns) == 0 {
		returns = []string{b.steps[len(b.steps)-1].ID}
	}
	for _, r := range returns {
		if !stepIDs[r] {
			return nil, fmt.Errorf("program %q returns unknown step %q", b.name, r)
		}
	}

	return &Program{
		id:      id.NewProgram(),
		name:    b.name,
		params:  append([]string(nil), b.params...),
		steps:   append([]Step(nil), b.steps...),
		returns: append([]string(nil), returns...),
		budget:  b.budget,
	}, nil
}
