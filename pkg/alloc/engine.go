// Package alloc distributes a reward pool across contributors
// proportionally to their contribution scores, under an anti-centralization
// dominance cap and a minimum-participant gate. Output order, rounding
// remainder assignment and cap events are all deterministic: contributors
// are processed sorted by identifier.
package alloc

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// Allocation is a one-shot output record: consumed once by the state
// transition engine, never persisted as mutable state.
type Allocation struct {
	Recipient string      `json:"recipient"`
	Amount    fixed.Value `json:"amount"`
	Score     fixed.Value `json:"score"`
	Timestamp uint64      `json:"timestamp"`
}

// Config fixes the engine's constitutional parameters.
type Config struct {
	// MinParticipants gates distribution: with fewer eligible
	// contributors no allocation occurs at all, rather than concentrating
	// the pool.
	MinParticipants int
	// MaxDominanceRatio caps any single contributor's share of the pool.
	// Excess above the cap is dropped, not redistributed: a deliberate
	// deflationary safety valve, logged as a saturation event.
	MaxDominanceRatio fixed.Value
}

// Engine computes allocations. Stateless; safe to share across sessions.
type Engine struct {
	cfg Config
}

// NewEngine builds an allocation engine over cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Allocate distributes pool across the scored contributors.
//
// Guarantees: amounts are non-negative; their sum never exceeds pool; the
// floor-rounding remainder goes to the lexicographically-last contributor;
// no amount exceeds pool*MaxDominanceRatio; fewer than MinParticipants
// eligible contributors yields an empty list. All-zero scores fall back to
// an equal split under the same cap.
func (e *Engine) Allocate(l *audit.Log, pool fixed.Value, scores map[string]fixed.Value, ts uint64) ([]Allocation, error) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	totalScore := new(big.Int)
	for _, id := range ids {
		totalScore.Add(totalScore, scores[id].Raw())
	}
	equalSplit := totalScore.Sign() == 0

	// Eligibility: zero-score contributors are excluded from the
	// proportional path; the equal-split fallback includes everyone.
	eligible := ids
	if !equalSplit {
		eligible = make([]string, 0, len(ids))
		for _, id := range ids {
			if !scores[id].IsZero() {
				eligible = append(eligible, id)
			}
		}
	}

	// The explicit zero check keeps the gate safe even when the engine is
	// built with an unvalidated MinParticipants below 1.
	if len(eligible) == 0 || len(eligible) < e.cfg.MinParticipants {
		l.Append("alloc.gate", []string{pool.String()}, "empty", map[string]string{
			"eligible": fmt.Sprintf("%d", len(eligible)),
			"required": fmt.Sprintf("%d", e.cfg.MinParticipants),
		})
		return []Allocation{}, nil
	}
	if pool.IsZero() {
		l.Append("alloc.gate", []string{pool.String()}, "empty", map[string]string{
			"reason": "empty_pool",
		})
		return []Allocation{}, nil
	}

	scale := fixed.Scale()
	capRaw := new(big.Int).Mul(pool.Raw(), e.cfg.MaxDominanceRatio.Raw())
	capRaw.Quo(capRaw, scale)

	shares := make([]*big.Int, len(eligible))
	distributed := new(big.Int)
	for i, id := range eligible {
		share := new(big.Int)
		if equalSplit {
			share.Quo(pool.Raw(), big.NewInt(int64(len(eligible))))
		} else {
			share.Mul(pool.Raw(), scores[id].Raw())
			share.Quo(share, totalScore)
		}
		shares[i] = share
		distributed.Add(distributed, share)
	}

	// Floor rounding leaves a remainder below len(eligible) raw units;
	// it is assigned to the lexicographically-last contributor so replays
	// agree on every unit.
	remainder := new(big.Int).Sub(pool.Raw(), distributed)
	if remainder.Sign() > 0 {
		shares[len(shares)-1].Add(shares[len(shares)-1], remainder)
	}

	out := make([]Allocation, 0, len(eligible))
	for i, id := range eligible {
		share := shares[i]
		if share.Cmp(capRaw) > 0 {
			dropped := new(big.Int).Sub(share, capRaw)
			l.Append("alloc.dominance_cap", []string{id}, "saturated", map[string]string{
				"dropped": rawString(dropped),
				"cap":     rawString(capRaw),
			})
			share = capRaw
		}
		amount, err := fixed.FromRaw(share)
		if err != nil {
			return nil, fmt.Errorf("alloc: share for %s: %w", id, err)
		}
		l.Append("alloc.grant", []string{id, scores[id].String()}, amount.String(), nil)
		out = append(out, Allocation{
			Recipient: id,
			Amount:    amount,
			Score:     scores[id],
			Timestamp: ts,
		})
	}
	return out, nil
}

func rawString(raw *big.Int) string {
	v, err := fixed.FromRaw(raw)
	if err != nil {
		return raw.String()
	}
	return v.String()
}
