package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetic-labs/psimesh/core/pkg/fixed"
	"github.com/noetic-labs/psimesh/core/pkg/state"
)

func baseTokens() map[state.TokenClass]map[string]fixed.Value {
	return map[state.TokenClass]map[string]fixed.Value{
		state.TokenCHR: {state.MetricBalance: fixed.FromUint64(1000)},
		state.TokenNOD: {state.MetricBalance: fixed.FromUint64(500)},
	}
}

// TestSnapshotContentAddressing verifies identical inputs hash to identical
// content ids and any field change diverges them.
func TestSnapshotContentAddressing(t *testing.T) {
	s1, err := state.NewSnapshot(baseTokens(), fixed.MustParse("0.1"), fixed.MustParse("0.2"), fixed.MustParse("0.7"), 100, "")
	require.NoError(t, err)
	s2, err := state.NewSnapshot(baseTokens(), fixed.MustParse("0.1"), fixed.MustParse("0.2"), fixed.MustParse("0.7"), 100, "")
	require.NoError(t, err)
	assert.Equal(t, s1.ContentID, s2.ContentID)
	assert.True(t, s1.Equal(s2))

	s3, err := state.NewSnapshot(baseTokens(), fixed.MustParse("0.1"), fixed.MustParse("0.2"), fixed.MustParse("0.7"), 101, "")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ContentID, s3.ContentID)

	tokens := baseTokens()
	tokens[state.TokenCHR][state.MetricBalance] = fixed.FromUint64(1001)
	s4, err := state.NewSnapshot(tokens, fixed.MustParse("0.1"), fixed.MustParse("0.2"), fixed.MustParse("0.7"), 100, "")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ContentID, s4.ContentID)
}

// TestSnapshotChaining verifies the predecessor id participates in the
// content hash, making the chain tamper-evident.
func TestSnapshotChaining(t *testing.T) {
	genesis, err := state.NewSnapshot(baseTokens(), fixed.Zero, fixed.Zero, fixed.Zero, 0, "")
	require.NoError(t, err)

	child, err := state.NewSnapshot(baseTokens(), fixed.Zero, fixed.Zero, fixed.Zero, 1, genesis.ContentID)
	require.NoError(t, err)
	assert.Equal(t, genesis.ContentID, child.PrevContentID)
	assert.NotEqual(t, genesis.ContentID, child.ContentID)
}

// TestSnapshotRejectsUnknownClass verifies the closed class enumeration.
func TestSnapshotRejectsUnknownClass(t *testing.T) {
	tokens := map[state.TokenClass]map[string]fixed.Value{
		"DOGE": {state.MetricBalance: fixed.FromUint64(1)},
	}
	_, err := state.NewSnapshot(tokens, fixed.Zero, fixed.Zero, fixed.Zero, 0, "")
	assert.Error(t, err)
}

// TestSnapshotDeepCopiesInput verifies mutating the caller's map after
// construction cannot reach the snapshot.
func TestSnapshotDeepCopiesInput(t *testing.T) {
	tokens := baseTokens()
	s, err := state.NewSnapshot(tokens, fixed.Zero, fixed.Zero, fixed.Zero, 0, "")
	require.NoError(t, err)

	tokens[state.TokenCHR][state.MetricBalance] = fixed.FromUint64(9999)
	assert.Equal(t, "1000", s.Balance(state.TokenCHR).String())
}

// TestMetricDefaultsToZero verifies absent classes and metrics read as 0.
func TestMetricDefaultsToZero(t *testing.T) {
	s, err := state.NewSnapshot(baseTokens(), fixed.Zero, fixed.Zero, fixed.Zero, 0, "")
	require.NoError(t, err)
	assert.True(t, s.Balance(state.TokenFLX).IsZero())
	assert.True(t, s.Metric(state.TokenCHR, "nonexistent").IsZero())
}

// TestTokenClassEnumeration verifies validity and the fixed iteration
// order.
func TestTokenClassEnumeration(t *testing.T) {
	for _, c := range state.AllTokenClasses() {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, state.TokenClass("DOGE").Valid())
	assert.Equal(t, state.TokenNOD, state.AllTokenClasses()[5])
}
