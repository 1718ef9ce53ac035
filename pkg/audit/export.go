package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/sha3"
)

// ErrEmptyKey is returned when an attestation key is missing.
var ErrEmptyKey = errors.New("audit: attestation key must not be empty")

// CanonicalBytes serializes the entry sequence to RFC 8785 canonical JSON:
// lexicographically sorted keys, fixed separators, no HTML escaping. This is
// the byte stream that digests and attestations are computed over, and the
// unit exchanged with any external anchoring service.
func (l *Log) CanonicalBytes() ([]byte, error) {
	raw, err := json.Marshal(l.entries)
	if err != nil {
		return nil, fmt.Errorf("audit: pre-marshal failed: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalization failed: %w", err)
	}
	return canon, nil
}

// Digest256 returns the SHA-256 hex digest of the canonical export.
func (l *Log) Digest256() (string, error) {
	b, err := l.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Digest512 returns the SHA3-512 hex digest of the canonical export, for
// consumers that require a 512-bit determinism proof.
func (l *Log) Digest512() (string, error) {
	b, err := l.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha3.Sum512(b)
	return hex.EncodeToString(sum[:]), nil
}

// Attest computes a deterministic HMAC-SHA256 tag over the canonical
// export. This is a simulated stand-in for a real signing service: it
// proves replay identity to a holder of the same key, nothing more.
func (l *Log) Attest(key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrEmptyKey
	}
	b, err := l.CanonicalBytes()
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(b)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyAttestation recomputes the tag and compares in constant time.
func (l *Log) VerifyAttestation(key []byte, tag string) (bool, error) {
	want, err := l.Attest(key)
	if err != nil {
		return false, err
	}
	wantB, err := hex.DecodeString(want)
	if err != nil {
		return false, err
	}
	gotB, err := hex.DecodeString(tag)
	if err != nil {
		return false, fmt.Errorf("audit: malformed attestation tag: %w", err)
	}
	return hmac.Equal(wantB, gotB), nil
}
