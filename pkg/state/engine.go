package state

import (
	"fmt"
	"sort"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/bounds"
	"github.com/noetic-labs/psimesh/core/pkg/certmath"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// CallContext identifies which subsystem is invoking the transition
// engine. It is the only contract between the core and the orchestration
// layer deciding which code path may move NOD-class value.
type CallContext string

const (
	CtxUserRewards   CallContext = "user_rewards"
	CtxNODAllocation CallContext = "nod_allocation"
	CtxGovernance    CallContext = "governance"
)

// Valid reports whether c is a member of the closed enumeration.
func (c CallContext) Valid() bool {
	switch c {
	case CtxUserRewards, CtxNODAllocation, CtxGovernance:
		return true
	}
	return false
}

// Invariant error codes.
const (
	CodeNODTransfer    = "INVARIANT_VIOLATION_NOD_TRANSFER"
	CodeSupplyConserve = "INVARIANT_VIOLATION_NOD_SUPPLY"
	CodeUnknownContext = "INVARIANT_VIOLATION_UNKNOWN_CONTEXT"
	CodeUnknownClass   = "INVARIANT_VIOLATION_UNKNOWN_CLASS"
)

// TransitionError is an invariant or escalated bound failure. The input
// snapshot remains the system's current state when one is returned.
type TransitionError struct {
	Code   string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("state: %s: %s", e.Code, e.Reason)
}

// Engine is the sole writer of token snapshots. Stateless between calls;
// a single snapshot's transition sequence must be serialized by the
// caller.
type Engine struct {
	guard *bounds.Guard
}

// NewEngine builds a transition engine re-validating against guard.
func NewEngine(guard *bounds.Guard) *Engine {
	return &Engine{guard: guard}
}

// Apply commits reward and NOD allocations onto snap, producing a new
// chained snapshot. Invariants are checked in order and any failure aborts
// with no partial mutation:
//
//  1. Transfer firewall: non-empty NOD allocations require the
//     nod_allocation or governance context.
//  2. Balances are updated by pure addition (issuance model).
//  3. NOD supply conservation and the economic bounds guard are re-applied
//     to the resulting supply deltas, not just the inputs.
//
// Failures are appended to the audit log before being surfaced.
func (e *Engine) Apply(l *audit.Log, snap *Snapshot, rewards map[TokenClass]map[string]fixed.Value, nod map[string]fixed.Value, ctx CallContext, ts uint64) (*Snapshot, error) {
	if !ctx.Valid() {
		terr := &TransitionError{Code: CodeUnknownContext, Reason: string(ctx)}
		l.AppendFailure("state.apply", []string{snap.ContentID}, terr.Code, terr.Reason)
		return nil, terr
	}

	// Every reward key must be a member of the closed class enum; a typo'd
	// class must abort the transition, never drop value silently. Keys are
	// checked in sorted order so the failing class is replay-stable.
	classKeys := make([]string, 0, len(rewards))
	for class := range rewards {
		classKeys = append(classKeys, string(class))
	}
	sort.Strings(classKeys)
	for _, key := range classKeys {
		if !TokenClass(key).Valid() {
			terr := &TransitionError{Code: CodeUnknownClass, Reason: key}
			l.AppendFailure("state.apply", []string{snap.ContentID}, terr.Code, terr.Reason)
			return nil, terr
		}
	}

	// Transfer firewall: ordinary user-facing reward flows must never
	// mint governance-class tokens.
	nodRequested := len(nod) > 0 || len(rewards[TokenNOD]) > 0
	if nodRequested && ctx != CtxNODAllocation && ctx != CtxGovernance {
		terr := &TransitionError{
			Code:   CodeNODTransfer,
			Reason: fmt.Sprintf("NOD allocation under context %q", ctx),
		}
		l.AppendFailure("state.apply", []string{snap.ContentID}, terr.Code, terr.Reason)
		return nil, terr
	}

	// Per-class issuance deltas, recipients folded in sorted order so the
	// audited addition sequence is replayable.
	deltas := make(map[TokenClass]fixed.Value, len(rewards)+1)
	for _, class := range AllTokenClasses() {
		allocs := rewards[class]
		if class == TokenNOD {
			if allocs == nil && len(nod) > 0 {
				allocs = nod
			} else if len(nod) > 0 {
				merged := make(map[string]fixed.Value, len(allocs)+len(nod))
				for k, v := range allocs {
					merged[k] = v
				}
				for k, v := range nod {
					if prev, ok := merged[k]; ok {
						sum, err := certmath.Add(l, prev, v)
						if err != nil {
							return nil, err
						}
						merged[k] = sum
					} else {
						merged[k] = v
					}
				}
				allocs = merged
			}
		}
		if len(allocs) == 0 {
			continue
		}
		delta := fixed.Zero
		for _, recipient := range sortedKeys(allocs) {
			sum, err := certmath.Add(l, delta, allocs[recipient])
			if err != nil {
				return nil, err
			}
			delta = sum
		}
		deltas[class] = delta
	}

	// New balances by pure addition; no sender balances are debited.
	tokens := make(map[TokenClass]map[string]fixed.Value, len(snap.Tokens))
	for class, metrics := range snap.Tokens {
		m := make(map[string]fixed.Value, len(metrics))
		for k, v := range metrics {
			m[k] = v
		}
		tokens[class] = m
	}
	for _, class := range AllTokenClasses() {
		delta, ok := deltas[class]
		if !ok {
			continue
		}
		if tokens[class] == nil {
			tokens[class] = make(map[string]fixed.Value, 1)
		}
		next, err := certmath.Add(l, snap.Balance(class), delta)
		if err != nil {
			return nil, err
		}
		tokens[class][MetricBalance] = next
	}

	// Defense in depth: the committed deltas are re-derived from the
	// before/after balances and re-validated, so a fault between input
	// validation and commit cannot slip an out-of-bounds delta through.
	for _, class := range AllTokenClasses() {
		declared, ok := deltas[class]
		if !ok {
			continue
		}
		committed, err := certmath.Sub(l, tokens[class][MetricBalance], snap.Balance(class))
		if err != nil {
			return nil, err
		}
		if class == TokenNOD && !committed.Equal(declared) {
			terr := &TransitionError{
				Code: CodeSupplyConserve,
				Reason: fmt.Sprintf("NOD created %s, allocated %s",
					committed, declared),
			}
			l.AppendFailure("state.apply", []string{snap.ContentID}, terr.Code, terr.Reason)
			return nil, terr
		}
		if res := e.guard.CheckSupplyDelta(l, string(class), committed); !res.OK {
			// Bound violations escalate to hard failures at this layer:
			// an out-of-bounds delta must never be committed.
			terr := &TransitionError{Code: res.Code, Reason: res.Message}
			l.AppendFailure("state.apply", []string{snap.ContentID}, terr.Code, terr.Reason)
			return nil, terr
		}
	}

	next, err := NewSnapshot(tokens, snap.SmoothingAlpha, snap.SmoothingBeta,
		snap.CriticalCoherence, ts, snap.ContentID)
	if err != nil {
		return nil, err
	}
	l.Append("state.commit", []string{snap.ContentID}, next.ContentID,
		map[string]string{"context": string(ctx)})
	return next, nil
}

func sortedKeys(m map[string]fixed.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
