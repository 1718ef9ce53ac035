//go:build property
// +build property

// Package alloc_test contains property-based tests for the allocation
// engine's conservation and dominance invariants.
package alloc_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/noetic-labs/psimesh/core/pkg/alloc"
	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

func scoreMap(raw []uint64) map[string]fixed.Value {
	scores := make(map[string]fixed.Value, len(raw))
	for i, s := range raw {
		scores[fmt.Sprintf("node-%03d", i)] = fixed.FromUint64(s)
	}
	return scores
}

// TestAllocationConservationProperty verifies distributed amounts never
// exceed the pool for any score distribution.
// Property: sum(amounts) <= pool
func TestAllocationConservationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	engine := alloc.NewEngine(alloc.Config{
		MinParticipants:   1,
		MaxDominanceRatio: fixed.MustParse("0.25"),
	})

	properties.Property("allocations never exceed the pool", prop.ForAll(
		func(poolWhole uint64, raw []uint64) bool {
			l := audit.NewLog("")
			pool := fixed.FromUint64(poolWhole)
			allocs, err := engine.Allocate(l, pool, scoreMap(raw), 0)
			if err != nil {
				return false
			}
			total := new(big.Int)
			for _, a := range allocs {
				total.Add(total, a.Amount.Raw())
			}
			return total.Cmp(pool.Raw()) <= 0
		},
		gen.UInt64Range(0, 1_000_000),
		gen.SliceOfN(8, gen.UInt64Range(0, 1_000_000)),
	))

	properties.TestingRun(t)
}

// TestDominanceCapProperty verifies no single amount exceeds the cap for
// any score distribution.
// Property: amount <= pool * MaxDominanceRatio for every recipient
func TestDominanceCapProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ratio := fixed.MustParse("0.25")
	engine := alloc.NewEngine(alloc.Config{
		MinParticipants:   1,
		MaxDominanceRatio: ratio,
	})

	properties.Property("no recipient exceeds the dominance cap", prop.ForAll(
		func(poolWhole uint64, raw []uint64) bool {
			l := audit.NewLog("")
			pool := fixed.FromUint64(poolWhole)
			allocs, err := engine.Allocate(l, pool, scoreMap(raw), 0)
			if err != nil {
				return false
			}
			capRaw := new(big.Int).Mul(pool.Raw(), ratio.Raw())
			capRaw.Quo(capRaw, fixed.Scale())
			for _, a := range allocs {
				if a.Amount.Raw().Cmp(capRaw) > 0 {
					return false
				}
			}
			return true
		},
		gen.UInt64Range(1, 1_000_000),
		gen.SliceOfN(6, gen.UInt64Range(0, 1_000_000)),
	))

	properties.TestingRun(t)
}

// TestAllocationDeterminismProperty verifies the same inputs replay to the
// same audit digest.
// Property: digest(Allocate(in)) == digest(Allocate(in))
func TestAllocationDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	engine := alloc.NewEngine(alloc.Config{
		MinParticipants:   2,
		MaxDominanceRatio: fixed.MustParse("0.4"),
	})

	properties.Property("allocation replays to an identical digest", prop.ForAll(
		func(poolWhole uint64, raw []uint64) bool {
			run := func() (string, bool) {
				l := audit.NewLog("alloc-prop")
				if _, err := engine.Allocate(l, fixed.FromUint64(poolWhole), scoreMap(raw), 7); err != nil {
					return "", false
				}
				dig, err := l.Digest256()
				if err != nil {
					return "", false
				}
				return dig, true
			}
			d1, ok1 := run()
			d2, ok2 := run()
			if !ok1 || !ok2 {
				return ok1 == ok2
			}
			return d1 == d2
		},
		gen.UInt64Range(0, 1_000_000),
		gen.SliceOfN(5, gen.UInt64Range(0, 1_000)),
	))

	properties.TestingRun(t)
}
