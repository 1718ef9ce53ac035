package audit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
)

func sampleLog(firstInput string) *audit.Log {
	l := audit.NewLog("export-test")
	l.Append("add", []string{firstInput, "2"}, "3", nil)
	l.Append("mul", []string{"3", "4"}, "12", map[string]string{"iterations": "32"})
	return l
}

// TestIdenticalLogsExportIdentically verifies the determinism proof: two
// logs built from the same operations canonicalize to the same bytes and
// the same 256- and 512-bit digests.
func TestIdenticalLogsExportIdentically(t *testing.T) {
	l1, l2 := sampleLog("1"), sampleLog("1")

	b1, err := l1.CanonicalBytes()
	require.NoError(t, err)
	b2, err := l2.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	d1, err := l1.Digest256()
	require.NoError(t, err)
	d2, err := l2.Digest256()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	w1, err := l1.Digest512()
	require.NoError(t, err)
	w2, err := l2.Digest512()
	require.NoError(t, err)
	assert.Equal(t, w1, w2)
	assert.Len(t, w1, 128)
}

// TestSingleOperandChangeDivergesDigest verifies that changing one input in
// one entry changes the digest: the log is tamper-evident end to end.
func TestSingleOperandChangeDivergesDigest(t *testing.T) {
	d1, err := sampleLog("1").Digest256()
	require.NoError(t, err)
	d2, err := sampleLog("10").Digest256()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

// TestMetaOrderDoesNotLeakIntoCanonicalForm verifies map iteration order
// cannot affect the export: keys are sorted during canonicalization.
func TestMetaOrderDoesNotLeakIntoCanonicalForm(t *testing.T) {
	build := func(meta map[string]string) *audit.Log {
		l := audit.NewLog("meta-order")
		l.Append("op", []string{"1"}, "1", meta)
		return l
	}
	d1, err := build(map[string]string{"a": "1", "b": "2", "c": "3"}).Digest256()
	require.NoError(t, err)
	d2, err := build(map[string]string{"c": "3", "a": "1", "b": "2"}).Digest256()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

// TestAttestationRoundTrip verifies the HMAC tag replays for the same key
// and log, and rejects a different key or a tampered log.
func TestAttestationRoundTrip(t *testing.T) {
	key := []byte("shared-attestation-key")
	l := sampleLog("1")

	tag, err := l.Attest(key)
	require.NoError(t, err)

	ok, err := l.VerifyAttestation(key, tag)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.VerifyAttestation([]byte("other-key"), tag)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = sampleLog("10").VerifyAttestation(key, tag)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestAttestRejectsEmptyKey verifies the fail-closed key check.
func TestAttestRejectsEmptyKey(t *testing.T) {
	_, err := sampleLog("1").Attest(nil)
	assert.ErrorIs(t, err, audit.ErrEmptyKey)
}
