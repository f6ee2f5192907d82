// Package engine executes declared programs: it walks each step through its
// control policy, records every attempt in a per-invocation trace, and
// enforces the invocation's work budget.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/stanza/internal/backoff"
	"github.com/longregen/stanza/pkg/llm"
	"github.com/longregen/stanza/pkg/program"
)

var tracer = otel.GetTracerProvider().Tracer("stanza/engine")

// Engine drives program invocations against one provider. Safe for concurrent
// use; concurrent invocations share nothing but the optional aggregate.
type Engine struct {
	provider llm.Provider
	backoff  backoff.Strategy
	agg      *Aggregate
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackoff sets the delay strategy between hard-failure retries.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Engine) { e.backoff = s }
}

// WithAggregate attaches shared cross-invocation statistics.
func WithAggregate(a *Aggregate) Option {
	return func(e *Engine) { e.agg = a }
}

// New creates an engine over the given provider.
func New(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{provider: provider, backoff: backoff.Quick}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type invokeOptions struct {
	budget program.BudgetConfig
}

// InvokeOption overrides per-invocation configuration.
type InvokeOption func(*invokeOptions)

// WithBudget overrides the program's budget; zero fields inherit.
func WithBudget(cfg program.BudgetConfig) InvokeOption {
	return func(o *invokeOptions) { o.budget = program.Merged(cfg, o.budget) }
}

// WithMaxRetries overrides the default per-step retry allowance.
func WithMaxRetries(n int) InvokeOption {
	return func(o *invokeOptions) { o.budget.MaxRetries = n }
}

// WithMaxSuggests overrides the default suggest attempt allowance.
func WithMaxSuggests(n int) InvokeOption {
	return func(o *invokeOptions) { o.budget.MaxSuggests = n }
}

// WithMaxAsserts overrides the default assert attempt allowance.
func WithMaxAsserts(n int) InvokeOption {
	return func(o *invokeOptions) { o.budget.MaxAsserts = n }
}

// WithMaxTotalCalls overrides the invocation-wide call ceiling.
func WithMaxTotalCalls(n int) InvokeOption {
	return func(o *invokeOptions) { o.budget.MaxTotalCalls = n }
}

// Result is the outcome of a completed or terminated invocation. On terminal
// failure Output/Outputs are empty but Invocation still carries the partial
// trace and stats for diagnosis.
type Result struct {
	// Output is the primary output: the content bound to the last declared
	// return step.
	Output string
	// Outputs maps every executed step ID to its accepted response content.
	Outputs map[string]string

	Invocation *Invocation
}

// Invoke runs the program against the given arguments. Steps execute in
// declaration order; each is dispatched to the controller matching its
// policy. The budget is checked after each step, never mid-attempt. The
// returned Result is non-nil even when err is non-nil, so callers can inspect
// the partial trace.
func (e *Engine) Invoke(ctx context.Context, prog *program.Program, args map[string]string, opts ...InvokeOption) (*Result, error) {
	o := invokeOptions{budget: prog.Budget()}
	for _, opt := range opts {
		opt(&o)
	}

	for _, p := range prog.Params() {
		if _, ok := args[p]; !ok {
			return nil, fmt.Errorf("program %q: missing argument %q", prog.Name(), p)
		}
	}

	inv := newInvocation(prog, args, o.budget)

	ctx, span := tracer.Start(ctx, "engine.invoke", trace.WithAttributes(
		attribute.String("program", prog.Name()),
		attribute.String("invocation_id", inv.ID),
		attribute.Int("steps", len(prog.Steps())),
	))
	defer span.End()

	steps := prog.Steps()
	for i, step := range steps {
		rec, conv, err := e.runStep(ctx, step, inv)
		if err != nil {
			span.RecordError(err)
			e.finish(inv)
			return &Result{Invocation: inv}, err
		}

		inv.Conversation = conv
		inv.Outputs[step.ID] = rec.Response.Content

		if i < len(steps)-1 && inv.Budget.Exhausted() {
			err := &BudgetExceededError{
				StepID: step.ID,
				Calls:  inv.Budget.Calls(),
				Limit:  inv.Budget.Limits().MaxTotalCalls,
			}
			span.RecordError(err)
			slog.WarnContext(ctx, "invocation aborted on budget",
				"invocation_id", inv.ID, "program", prog.Name(),
				"calls", inv.Budget.Calls(), "limit", inv.Budget.Limits().MaxTotalCalls)
			e.finish(inv)
			return &Result{Invocation: inv}, err
		}
	}

	e.finish(inv)
	span.SetAttributes(
		attribute.Int("calls", inv.Stats.TotalCalls),
		attribute.Int("retries", inv.Stats.Retries),
		attribute.Int("suggest_warnings", inv.Stats.SuggestWarnings),
	)

	outputs := make(map[string]string, len(inv.Outputs))
	for k, v := range inv.Outputs {
		outputs[k] = v
	}
	returns := prog.Returns()
	return &Result{
		Output:     outputs[returns[len(returns)-1]],
		Outputs:    outputs,
		Invocation: inv,
	}, nil
}

func (e *Engine) runStep(ctx context.Context, step program.Step, inv *Invocation) (CallRecord, llm.Conversation, error) {
	ctx, span := tracer.Start(ctx, "engine.step", trace.WithAttributes(
		attribute.String("step", step.ID),
		attribute.String("policy", step.Policy.String()),
	))
	defer span.End()

	prompt := renderPrompt(step.Prompt, inv.Args)
	req := inv.Conversation.With(llm.RoleUser, prompt)

	var (
		rec  CallRecord
		conv llm.Conversation
		err  error
	)
	switch step.Policy {
	case program.PolicySuggest, program.PolicyAssert:
		rec, conv, err = e.runChecked(ctx, step, inv, req)
	default:
		rec, conv, err = e.runRetry(ctx, step, inv, req)
	}

	if err != nil {
		span.RecordError(err)
		return CallRecord{}, nil, err
	}
	span.SetAttributes(attribute.Int("attempts", len(inv.Trace.Records(step.ID))))
	return rec, conv, nil
}

// finish stamps the invocation and publishes it to the shared aggregate. The
// lock inside the aggregate is scoped to the increment only and is never held
// across a provider call.
func (e *Engine) finish(inv *Invocation) {
	inv.FinishedAt = time.Now()
	if e.agg != nil {
		e.agg.observe(inv)
	}
}

// renderPrompt fills {{name}} slots from the invocation arguments.
func renderPrompt(tmpl string, args map[string]string) string {
	out := tmpl
	for k, v := range args {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
