// Package audit provides the caller-owned, append-only operation log that is
// the ledger core's primary correctness oracle: two runs over identical
// inputs must produce byte-identical canonical exports and identical
// digests of them.
//
// A Log is scoped to one logical session and is NOT safe for concurrent
// use; independent sessions may run in parallel because nothing here is
// shared. Entries are never read back by the core during a computation,
// only appended.
package audit

import (
	"fmt"

	"github.com/google/uuid"
)

// UncorrelatedID is the sentinel correlation id for sessions whose caller
// did not supply one. A deterministic constant, never a minted UUID: the
// log contents must not depend on ambient randomness.
const UncorrelatedID = "uncorrelated"

// Entry is one ordered audit record. Inputs and Result carry canonical
// decimal strings (or other canonical encodings for non-numeric payloads).
type Entry struct {
	Seq           uint64            `json:"seq"`
	Op            string            `json:"op"`
	Inputs        []string          `json:"inputs"`
	Result        string            `json:"result"`
	CorrelationID string            `json:"correlation_id"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// Log is an append-only entry sequence for a single session.
type Log struct {
	correlationID string
	entries       []Entry
}

// NewLog creates an empty session log. An empty correlationID becomes
// UncorrelatedID.
func NewLog(correlationID string) *Log {
	if correlationID == "" {
		correlationID = UncorrelatedID
	}
	return &Log{correlationID: correlationID}
}

// Restore rebuilds a Log from previously exported entries, e.g. for digest
// re-verification. Sequence numbers are validated, not reassigned.
func Restore(entries []Entry) (*Log, error) {
	l := &Log{correlationID: UncorrelatedID}
	for i, e := range entries {
		if e.Seq != uint64(i) {
			return nil, fmt.Errorf("audit: entry %d carries sequence %d", i, e.Seq)
		}
		if i == 0 && e.CorrelationID != "" {
			l.correlationID = e.CorrelationID
		}
		l.entries = append(l.entries, e)
	}
	return l, nil
}

// NewCorrelationID mints a UUID for callers that sit outside the
// deterministic path (request handlers, CLIs). Core computations never
// call this; they receive ids from their caller.
func NewCorrelationID() string { return uuid.New().String() }

// CorrelationID returns the session correlation id.
func (l *Log) CorrelationID() string { return l.correlationID }

// Len returns the number of appended entries.
func (l *Log) Len() int { return len(l.entries) }

// Entries returns a copy of the entry sequence.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Append records a successful operation and returns its sequence index.
// Meta keys are serialized in sorted order at export time, so map iteration
// order never leaks into the canonical form.
func (l *Log) Append(op string, inputs []string, result string, meta map[string]string) uint64 {
	seq := uint64(len(l.entries))
	in := make([]string, len(inputs))
	copy(in, inputs)
	var m map[string]string
	if len(meta) > 0 {
		m = make(map[string]string, len(meta))
		for k, v := range meta {
			m[k] = v
		}
	}
	l.entries = append(l.entries, Entry{
		Seq:           seq,
		Op:            op,
		Inputs:        in,
		Result:        result,
		CorrelationID: l.correlationID,
		Meta:          m,
	})
	return seq
}

// AppendFailure records a failed operation before the failure is surfaced
// to the caller. The result field carries the stable machine code.
func (l *Log) AppendFailure(op string, inputs []string, code, msg string) uint64 {
	return l.Append(op, inputs, code, map[string]string{
		"outcome": "failure",
		"message": msg,
	})
}
