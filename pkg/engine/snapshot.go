package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/longregen/stanza/pkg/llm"
)

// InvocationSnapshot is the serializable form of a finished (or terminated)
// invocation, suitable for handing to external trace sinks.
type InvocationSnapshot struct {
	ID         string            `json:"id" msgpack:"id"`
	Program    string            `json:"program" msgpack:"program"`
	Args       map[string]string `json:"args" msgpack:"args"`
	StartedAt  time.Time         `json:"started_at" msgpack:"started_at"`
	FinishedAt time.Time         `json:"finished_at" msgpack:"finished_at"`
	Steps      []StepTrace       `json:"steps" msgpack:"steps"`
	Stats      Stats             `json:"stats" msgpack:"stats"`
	Outputs    map[string]string `json:"outputs" msgpack:"outputs"`
	// Conversation is the accepted message history at the point the
	// invocation finished or terminated.
	Conversation llm.Conversation `json:"conversation" msgpack:"conversation"`
}

// Snapshot copies the invocation into its exportable form.
func (inv *Invocation) Snapshot() InvocationSnapshot {
	outputs := make(map[string]string, len(inv.Outputs))
	for k, v := range inv.Outputs {
		outputs[k] = v
	}
	return InvocationSnapshot{
		ID:           inv.ID,
		Program:      inv.ProgramName,
		Args:         inv.Args,
		StartedAt:    inv.StartedAt,
		FinishedAt:   inv.FinishedAt,
		Steps:        inv.Trace.Snapshot(),
		Stats:        inv.Stats,
		Outputs:      outputs,
		Conversation: inv.Conversation.Clone(),
	}
}

// WriteSnapshot encodes the invocation snapshot as msgpack.
func WriteSnapshot(w io.Writer, inv *Invocation) error {
	if err := msgpack.NewEncoder(w).Encode(inv.Snapshot()); err != nil {
		return fmt.Errorf("encode invocation snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a msgpack invocation snapshot.
func ReadSnapshot(r io.Reader) (*InvocationSnapshot, error) {
	var snap InvocationSnapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode invocation snapshot: %w", err)
	}
	return &snap, nil
}
