package engine

import (
	"time"

	"github.com/longregen/stanza/internal/id"
	"github.com/longregen/stanza/pkg/llm"
	"github.com/longregen/stanza/pkg/program"
)

// CallRecord is one attempt at one step. Immutable once appended to a trace.
type CallRecord struct {
	Attempt  int              `json:"attempt" msgpack:"attempt"`
	Request  llm.Conversation `json:"request" msgpack:"request"`
	Response llm.Message      `json:"response" msgpack:"response"`
	OK       bool             `json:"ok" msgpack:"ok"`
	Err      string           `json:"error,omitempty" msgpack:"error,omitempty"`
	// PredicateOK is set only for suggest/assert attempts.
	PredicateOK *bool     `json:"predicate_ok,omitempty" msgpack:"predicate_ok,omitempty"`
	At          time.Time `json:"at" msgpack:"at"`
}

// Trace maps step IDs to the ordered attempts made for them within one
// invocation. Append-only during execution, read-only afterward.
type Trace struct {
	order   []string
	records map[string][]CallRecord
}

func newTrace() *Trace {
	return &Trace{records: make(map[string][]CallRecord)}
}

func (t *Trace) append(stepID string, rec CallRecord) {
	if _, ok := t.records[stepID]; !ok {
		t.order = append(t.order, stepID)
	}
	t.records[stepID] = append(t.records[stepID], rec)
}

// StepIDs returns the executed step IDs in insertion order.
func (t *Trace) StepIDs() []string {
	return append([]string(nil), t.order...)
}

// Records returns the attempts for one step in attempt order.
func (t *Trace) Records(stepID string) []CallRecord {
	return append([]CallRecord(nil), t.records[stepID]...)
}

// Len returns the total number of recorded attempts.
func (t *Trace) Len() int {
	n := 0
	for _, recs := range t.records {
		n += len(recs)
	}
	return n
}

// StepTrace is the exportable form of one step's attempts.
type StepTrace struct {
	StepID  string       `json:"step_id" msgpack:"step_id"`
	Records []CallRecord `json:"records" msgpack:"records"`
}

// Snapshot returns an ordered, serializable copy of the trace.
func (t *Trace) Snapshot() []StepTrace {
	out := make([]StepTrace, 0, len(t.order))
	for _, stepID := range t.order {
		out = append(out, StepTrace{StepID: stepID, Records: t.Records(stepID)})
	}
	return out
}

// Stats aggregates counters derived from a trace, updated as records append.
type Stats struct {
	TotalCalls      int `json:"total_calls" msgpack:"total_calls"`
	TotalAttempts   int `json:"total_attempts" msgpack:"total_attempts"`
	Retries         int `json:"retries" msgpack:"retries"`
	SuggestWarnings int `json:"suggest_warnings" msgpack:"suggest_warnings"`
	AssertFailures  int `json:"assert_failures" msgpack:"assert_failures"`
}

// Invocation is the mutable run-time state for one call to a program. Each
// invocation owns its trace, stats and budget; nothing is shared with
// concurrent invocations of the same program.
type Invocation struct {
	ID          string
	ProgramName string
	Args        map[string]string
	StartedAt   time.Time
	FinishedAt  time.Time

	// Conversation is the accepted message history across completed steps.
	Conversation llm.Conversation

	Trace   *Trace
	Stats   Stats
	Budget  *Budget
	Outputs map[string]string
}

func newInvocation(prog *program.Program, args map[string]string, budget program.BudgetConfig) *Invocation {
	copied := make(map[string]string, len(args))
	for k, v := range args {
		copied[k] = v
	}
	return &Invocation{
		ID:          id.NewInvocation(),
		ProgramName: prog.Name(),
		Args:        copied,
		StartedAt:   time.Now(),
		Trace:       newTrace(),
		Budget:      newBudget(budget),
		Outputs:     make(map[string]string),
	}
}

// record appends an attempt and keeps the derived counters current.
func (inv *Invocation) record(stepID string, rec CallRecord) {
	inv.Trace.append(stepID, rec)
	inv.Stats.TotalAttempts++
	inv.Stats.TotalCalls++
	inv.Budget.Charge(KindCall)
}
