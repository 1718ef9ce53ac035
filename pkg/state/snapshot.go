// Package state owns the token state snapshot and its single atomic
// writer, the transition engine. Snapshots are immutable: every accepted
// action constructs a new content-addressed snapshot chained on the
// previous one, which remains valid as history.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// TokenClass is the closed set of ledger token classes.
type TokenClass string

const (
	TokenCHR     TokenClass = "CHR"
	TokenFLX     TokenClass = "FLX"
	TokenRES     TokenClass = "RES"
	TokenPsiSync TokenClass = "PsiSync"
	TokenATR     TokenClass = "ATR"
	// TokenNOD is the governance class; its movement is restricted by the
	// transfer firewall.
	TokenNOD TokenClass = "NOD"
)

// AllTokenClasses returns every class in fixed iteration order; all
// per-class processing walks this slice so replays agree.
func AllTokenClasses() []TokenClass {
	return []TokenClass{TokenCHR, TokenFLX, TokenRES, TokenPsiSync, TokenATR, TokenNOD}
}

// Valid reports whether c is a known class.
func (c TokenClass) Valid() bool {
	switch c {
	case TokenCHR, TokenFLX, TokenRES, TokenPsiSync, TokenATR, TokenNOD:
		return true
	}
	return false
}

// MetricBalance is the canonical per-class balance metric.
const MetricBalance = "balance"

// Snapshot is an immutable bundle of per-class metrics plus bundle-level
// parameters, identified by the content hash of its canonical form.
type Snapshot struct {
	Tokens            map[TokenClass]map[string]fixed.Value `json:"tokens"`
	SmoothingAlpha    fixed.Value                           `json:"smoothing_alpha"`
	SmoothingBeta     fixed.Value                           `json:"smoothing_beta"`
	CriticalCoherence fixed.Value                           `json:"critical_coherence"`
	Timestamp         uint64                                `json:"timestamp"`
	PrevContentID     string                                `json:"prev_content_id,omitempty"`
	ContentID         string                                `json:"content_id"`
}

// NewSnapshot deep-copies the inputs, validates classes and computes the
// content id. prevContentID is empty for a genesis snapshot.
func NewSnapshot(tokens map[TokenClass]map[string]fixed.Value, alpha, beta, critical fixed.Value, ts uint64, prevContentID string) (*Snapshot, error) {
	own := make(map[TokenClass]map[string]fixed.Value, len(tokens))
	for class, metrics := range tokens {
		if !class.Valid() {
			return nil, fmt.Errorf("state: unknown token class %q", class)
		}
		m := make(map[string]fixed.Value, len(metrics))
		for k, v := range metrics {
			m[k] = v
		}
		own[class] = m
	}
	s := &Snapshot{
		Tokens:            own,
		SmoothingAlpha:    alpha,
		SmoothingBeta:     beta,
		CriticalCoherence: critical,
		Timestamp:         ts,
		PrevContentID:     prevContentID,
	}
	id, err := s.contentHash()
	if err != nil {
		return nil, err
	}
	s.ContentID = id
	return s, nil
}

// Metric returns a metric value, Zero when absent.
func (s *Snapshot) Metric(class TokenClass, name string) fixed.Value {
	return s.Tokens[class][name]
}

// Balance returns the class balance metric.
func (s *Snapshot) Balance(class TokenClass) fixed.Value {
	return s.Metric(class, MetricBalance)
}

// Equal reports content equality via the content ids.
func (s *Snapshot) Equal(o *Snapshot) bool {
	return s != nil && o != nil && s.ContentID == o.ContentID
}

// contentHash serializes the snapshot (without the id field, values as
// canonical decimal strings) to RFC 8785 form and hashes it.
func (s *Snapshot) contentHash() (string, error) {
	tokens := make(map[string]map[string]string, len(s.Tokens))
	for class, metrics := range s.Tokens {
		m := make(map[string]string, len(metrics))
		for k, v := range metrics {
			m[k] = v.String()
		}
		tokens[string(class)] = m
	}
	raw, err := json.Marshal(map[string]any{
		"tokens":             tokens,
		"smoothing_alpha":    s.SmoothingAlpha.String(),
		"smoothing_beta":     s.SmoothingBeta.String(),
		"critical_coherence": s.CriticalCoherence.String(),
		"timestamp":          s.Timestamp,
		"prev_content_id":    s.PrevContentID,
	})
	if err != nil {
		return "", fmt.Errorf("state: snapshot marshal failed: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("state: snapshot canonicalization failed: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
