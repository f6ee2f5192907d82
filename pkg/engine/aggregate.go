package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Aggregate holds cross-invocation counters for one engine or program. It is
// the only state shared between concurrent invocations; all mutation happens
// under a mutex scoped to the increment.
type Aggregate struct {
	mu              sync.Mutex
	invocations     int64
	calls           int64
	retries         int64
	suggestWarnings int64
	assertFailures  int64

	promInvocations prometheus.Counter
	promCalls       prometheus.Counter
	promRetries     prometheus.Counter
	promSuggests    prometheus.Counter
	promAsserts     prometheus.Counter
}

// NewAggregate creates an aggregate without metrics export.
func NewAggregate() *Aggregate {
	return &Aggregate{}
}

// NewAggregateWithRegistry creates an aggregate that also exports its counters
// as prometheus metrics.
func NewAggregateWithRegistry(reg prometheus.Registerer) *Aggregate {
	a := &Aggregate{
		promInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stanza", Subsystem: "engine", Name: "invocations_total",
			Help: "Completed or terminated program invocations.",
		}),
		promCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stanza", Subsystem: "engine", Name: "calls_total",
			Help: "Provider calls made across all invocations.",
		}),
		promRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stanza", Subsystem: "engine", Name: "retries_total",
			Help: "Hard-failure re-invocations across all invocations.",
		}),
		promSuggests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stanza", Subsystem: "engine", Name: "suggest_warnings_total",
			Help: "Suggest steps that exhausted their budget and degraded.",
		}),
		promAsserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stanza", Subsystem: "engine", Name: "assert_failures_total",
			Help: "Assert steps that exhausted their budget and terminated.",
		}),
	}
	reg.MustRegister(a.promInvocations, a.promCalls, a.promRetries, a.promSuggests, a.promAsserts)
	return a
}

func (a *Aggregate) observe(inv *Invocation) {
	a.mu.Lock()
	a.invocations++
	a.calls += int64(inv.Stats.TotalCalls)
	a.retries += int64(inv.Stats.Retries)
	a.suggestWarnings += int64(inv.Stats.SuggestWarnings)
	a.assertFailures += int64(inv.Stats.AssertFailures)
	a.mu.Unlock()

	if a.promInvocations != nil {
		a.promInvocations.Inc()
		a.promCalls.Add(float64(inv.Stats.TotalCalls))
		a.promRetries.Add(float64(inv.Stats.Retries))
		a.promSuggests.Add(float64(inv.Stats.SuggestWarnings))
		a.promAsserts.Add(float64(inv.Stats.AssertFailures))
	}
}

// AggregateSnapshot is a point-in-time copy of the shared counters.
type AggregateSnapshot struct {
	Invocations     int64
	Calls           int64
	Retries         int64
	SuggestWarnings int64
	AssertFailures  int64
}

// Snapshot returns the current counter values.
func (a *Aggregate) Snapshot() AggregateSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AggregateSnapshot{
		Invocations:     a.invocations,
		Calls:           a.calls,
		Retries:         a.retries,
		SuggestWarnings: a.suggestWarnings,
		AssertFailures:  a.assertFailures,
	}
}
