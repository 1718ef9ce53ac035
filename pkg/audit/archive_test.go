package audit_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
)

// TestArchiveStoreLoadRoundTrip verifies an exported log survives the
// sqlite archive with its digest intact.
func TestArchiveStoreLoadRoundTrip(t *testing.T) {
	arch, err := audit.OpenArchive(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer arch.Close()

	l := sampleLog("1")
	digest, err := arch.Store(l, 1700)
	require.NoError(t, err)

	want, err := l.Digest256()
	require.NoError(t, err)
	assert.Equal(t, want, digest)

	loaded, err := arch.Load(digest)
	require.NoError(t, err)
	assert.Equal(t, l.Len(), loaded.Len())
	assert.Equal(t, l.CorrelationID(), loaded.CorrelationID())
	assert.Equal(t, l.Entries(), loaded.Entries())
}

// TestArchiveStoreIdempotent verifies re-storing the same log is a no-op
// keyed by digest.
func TestArchiveStoreIdempotent(t *testing.T) {
	arch, err := audit.OpenArchive(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer arch.Close()

	l := sampleLog("1")
	d1, err := arch.Store(l, 100)
	require.NoError(t, err)
	d2, err := arch.Store(l, 200)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	_, err = arch.Load(d1)
	assert.NoError(t, err)
}

// TestArchiveLoadUnknownDigest verifies a miss is an error, not an empty
// log.
func TestArchiveLoadUnknownDigest(t *testing.T) {
	arch, err := audit.OpenArchive(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer arch.Close()

	_, err = arch.Load("deadbeef")
	assert.Error(t, err)
}

// TestNilArchiveFailsClosed verifies operations on an unconfigured archive
// error instead of silently dropping evidence.
func TestNilArchiveFailsClosed(t *testing.T) {
	var arch *audit.Archive
	_, err := arch.Store(sampleLog("1"), 0)
	assert.ErrorIs(t, err, audit.ErrArchiveNotConfigured)
	_, err = arch.Load("any")
	assert.ErrorIs(t, err, audit.ErrArchiveNotConfigured)
	assert.NoError(t, arch.Close())
}
