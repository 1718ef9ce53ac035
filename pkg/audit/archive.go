package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // embedded driver, no external server
)

// Archive is an optional sqlite-backed store of exported logs, keyed by
// their SHA-256 digest. It is host-side infrastructure: the core never
// touches an Archive during a computation, hosts use it to retain
// determinism evidence across restarts. Fail-closed: operations on a nil
// Archive error instead of dropping evidence silently.
type Archive struct {
	db *sql.DB
}

// ErrArchiveNotConfigured is returned when an Archive handle is nil.
var ErrArchiveNotConfigured = errors.New("audit: archive not configured (fail-closed)")

// ErrArchiveCorrupt is returned when a stored log no longer matches its
// digest key.
var ErrArchiveCorrupt = errors.New("audit: archived log fails digest verification")

const archiveSchema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	digest         TEXT PRIMARY KEY,
	correlation_id TEXT NOT NULL,
	entry_count    INTEGER NOT NULL,
	canonical      BLOB NOT NULL,
	stored_at      INTEGER NOT NULL
);`

// OpenArchive opens (and initializes) an archive database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open archive: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the underlying database handle.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Store writes the log's canonical export under its digest. storedAt is a
// caller-supplied logical timestamp. Re-storing an identical log is a
// no-op; the digest key makes the write idempotent.
func (a *Archive) Store(l *Log, storedAt uint64) (string, error) {
	if a == nil || a.db == nil {
		return "", ErrArchiveNotConfigured
	}
	canon, err := l.CanonicalBytes()
	if err != nil {
		return "", err
	}
	digest, err := l.Digest256()
	if err != nil {
		return "", err
	}
	_, err = a.db.Exec(
		`INSERT OR IGNORE INTO audit_logs (digest, correlation_id, entry_count, canonical, stored_at) VALUES (?, ?, ?, ?, ?)`,
		digest, l.CorrelationID(), l.Len(), canon, int64(storedAt),
	)
	if err != nil {
		return "", fmt.Errorf("audit: store log: %w", err)
	}
	return digest, nil
}

// Load restores the log stored under digest, re-verifying the digest
// against the stored bytes before returning.
func (a *Archive) Load(digest string) (*Log, error) {
	if a == nil || a.db == nil {
		return nil, ErrArchiveNotConfigured
	}
	var canon []byte
	err := a.db.QueryRow(`SELECT canonical FROM audit_logs WHERE digest = ?`, digest).Scan(&canon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit: no archived log with digest %s", digest)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: load log: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(canon, &entries); err != nil {
		return nil, fmt.Errorf("audit: decode archived log: %w", err)
	}
	l, err := Restore(entries)
	if err != nil {
		return nil, err
	}
	got, err := l.Digest256()
	if err != nil {
		return nil, err
	}
	if got != digest {
		return nil, fmt.Errorf("%w: stored %s, recomputed %s", ErrArchiveCorrupt, digest, got)
	}
	return l, nil
}
