package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/longregen/stanza/pkg/llm"
	"github.com/longregen/stanza/pkg/program"
)

// runRetry drives a none/retry step: identical requests, no feedback. A step
// with PolicyNone is a retry step with zero extra attempts. Exhaustion is
// fatal for the invocation; there is no soft-degrade path for a step that
// never produced a usable response.
func (e *Engine) runRetry(ctx context.Context, step program.Step, inv *Invocation, req llm.Conversation) (CallRecord, llm.Conversation, error) {
	attempts := 1
	if step.Policy == program.PolicyRetry {
		attempts = inv.Budget.limitFor(step) + 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			inv.Budget.Charge(KindRetry)
			inv.Stats.Retries++
			if err := e.backoff.Sleep(ctx, attempt-1); err != nil {
				return CallRecord{}, nil, err
			}
		}

		resp, callErr := e.provider.Generate(ctx, req, step.Params)
		rec := CallRecord{Attempt: attempt, Request: req, At: time.Now()}
		if callErr != nil {
			rec.Err = callErr.Error()
			inv.record(step.ID, rec)
			lastErr = callErr
			slog.WarnContext(ctx, "provider call failed",
				"invocation_id", inv.ID, "step", step.ID, "attempt", attempt, "error", callErr)
			continue
		}

		rec.OK = true
		rec.Response = resp
		inv.record(step.ID, rec)
		return rec, req.With(llm.RoleAssistant, resp.Content), nil
	}

	return CallRecord{}, nil, &RetriesExhaustedError{StepID: step.ID, Attempts: attempts, LastErr: lastErr}
}

// runChecked drives a suggest or assert step. Per attempt: invoke, evaluate
// the predicate; on failure with attempts remaining, append feedback to the
// conversation and go again. The two policies differ only in what exhaustion
// means: suggest records a warning and accepts the last result, assert
// terminates the invocation.
func (e *Engine) runChecked(ctx context.Context, step program.Step, inv *Invocation, req llm.Conversation) (CallRecord, llm.Conversation, error) {
	attempts := inv.Budget.limitFor(step)
	if attempts < 1 {
		attempts = 1
	}
	fatal := step.Policy == program.PolicyAssert
	rekind := KindSuggest
	if fatal {
		rekind = KindAssert
	}

	var last CallRecord
	var lastConv llm.Conversation
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			inv.Budget.Charge(rekind)
		}

		resp, callErr := e.provider.Generate(ctx, req, step.Params)
		if callErr != nil {
			rec := CallRecord{Attempt: attempt, Request: req, Err: callErr.Error(), At: time.Now()}
			inv.record(step.ID, rec)
			return CallRecord{}, nil, &CallFailureError{StepID: step.ID, Attempt: attempt, Err: callErr}
		}

		ok := step.Predicate(resp, req)
		rec := CallRecord{Attempt: attempt, Request: req, Response: resp, OK: true, PredicateOK: &ok, At: time.Now()}
		inv.record(step.ID, rec)

		conv := req.With(llm.RoleAssistant, resp.Content)
		if ok {
			return rec, conv, nil
		}

		last = rec
		lastConv = conv
		if attempt < attempts {
			feedback := e.renderFeedback(step, resp)
			req = conv.With(llm.RoleUser, feedback)
			slog.DebugContext(ctx, "predicate failed, injecting feedback",
				"invocation_id", inv.ID, "step", step.ID, "attempt", attempt, "policy", step.Policy.String())
		}
	}

	if fatal {
		inv.Stats.AssertFailures++
		return CallRecord{}, nil, &AssertExhaustedError{StepID: step.ID, Attempts: attempts, Conversation: lastConv}
	}

	inv.Stats.SuggestWarnings++
	slog.WarnContext(ctx, "suggest budget exhausted, accepting last result",
		"invocation_id", inv.ID, "step", step.ID, "attempts", attempts)
	return last, lastConv, nil
}

func (e *Engine) renderFeedback(step program.Step, resp llm.Message) string {
	if step.Feedback != nil {
		return step.Feedback(resp)
	}
	return fmt.Sprintf("The previous answer did not satisfy the %s check for step %q. Please revise it.", step.Policy, step.ID)
}
