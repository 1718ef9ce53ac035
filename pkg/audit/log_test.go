package audit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
)

// TestAppendAssignsSequentialSeq verifies entries are numbered densely from
// zero in append order.
func TestAppendAssignsSequentialSeq(t *testing.T) {
	l := audit.NewLog("corr-1")
	assert.Equal(t, uint64(0), l.Append("add", []string{"1", "2"}, "3", nil))
	assert.Equal(t, uint64(1), l.Append("mul", []string{"2", "3"}, "6", nil))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "corr-1", l.CorrelationID())
}

// TestEmptyCorrelationIDGetsSentinel verifies the deterministic sentinel is
// used instead of a minted UUID.
func TestEmptyCorrelationIDGetsSentinel(t *testing.T) {
	l := audit.NewLog("")
	assert.Equal(t, audit.UncorrelatedID, l.CorrelationID())
	l.Append("add", []string{"1", "1"}, "2", nil)
	assert.Equal(t, audit.UncorrelatedID, l.Entries()[0].CorrelationID)
}

// TestAppendCopiesInputs verifies later mutation of a caller's slice or map
// cannot reach recorded entries.
func TestAppendCopiesInputs(t *testing.T) {
	l := audit.NewLog("")
	ins := []string{"1", "2"}
	meta := map[string]string{"k": "v"}
	l.Append("add", ins, "3", meta)

	ins[0] = "tampered"
	meta["k"] = "tampered"

	e := l.Entries()[0]
	assert.Equal(t, "1", e.Inputs[0])
	assert.Equal(t, "v", e.Meta["k"])
}

// TestAppendFailureRecordsCodeAndOutcome verifies the failure convention:
// the result field carries the machine code, meta marks the outcome.
func TestAppendFailureRecordsCodeAndOutcome(t *testing.T) {
	l := audit.NewLog("")
	l.AppendFailure("div", []string{"1", "0"}, "CERT_DIV_ZERO", "division by zero")

	e := l.Entries()[0]
	assert.Equal(t, "CERT_DIV_ZERO", e.Result)
	assert.Equal(t, "failure", e.Meta["outcome"])
	assert.Equal(t, "division by zero", e.Meta["message"])
}

// TestRestoreRoundTrip verifies an exported entry sequence restores into an
// equivalent log with the same digest.
func TestRestoreRoundTrip(t *testing.T) {
	l := audit.NewLog("restore-me")
	l.Append("add", []string{"1", "2"}, "3", nil)
	l.Append("mul", []string{"3", "3"}, "9", map[string]string{"iterations": "32"})

	restored, err := audit.Restore(l.Entries())
	require.NoError(t, err)
	assert.Equal(t, "restore-me", restored.CorrelationID())

	d1, err := l.Digest256()
	require.NoError(t, err)
	d2, err := restored.Digest256()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

// TestRestoreRejectsGaps verifies a sequence hole is detected instead of
// silently renumbered.
func TestRestoreRejectsGaps(t *testing.T) {
	l := audit.NewLog("")
	l.Append("add", []string{"1", "2"}, "3", nil)
	l.Append("add", []string{"3", "4"}, "7", nil)

	entries := l.Entries()
	entries[1].Seq = 5
	_, err := audit.Restore(entries)
	assert.Error(t, err)
}
