package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
)

// Event is one governance transition, content-hashed and chained on its
// predecessor so the sequence is ready for external merkle inclusion.
type Event struct {
	Seq         uint64 `json:"seq"`
	ProposalID  string `json:"proposal_id"`
	Action      string `json:"action"`
	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
	Hash        string `json:"hash"`
}

const genesisHash = "genesis"

// contentHash returns the SHA-256 hex digest of v's RFC 8785 canonical
// JSON form.
func contentHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("governance: event marshal failed: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("governance: event canonicalization failed: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// appendEvent hashes the structured payload, chains the event and mirrors
// it into the session audit log.
func (r *Registry) appendEvent(l *audit.Log, proposalID, action string, payload any) (*Event, error) {
	payloadHash, err := contentHash(payload)
	if err != nil {
		return nil, err
	}
	prev := genesisHash
	if n := len(r.events); n > 0 {
		prev = r.events[n-1].Hash
	}
	ev := Event{
		Seq:         uint64(len(r.events)),
		ProposalID:  proposalID,
		Action:      action,
		PayloadHash: payloadHash,
		PrevHash:    prev,
	}
	ev.Hash, err = contentHash(map[string]any{
		"seq":          ev.Seq,
		"proposal_id":  ev.ProposalID,
		"action":       ev.Action,
		"payload_hash": ev.PayloadHash,
		"prev_hash":    ev.PrevHash,
	})
	if err != nil {
		return nil, err
	}
	r.events = append(r.events, ev)
	l.Append("governance."+action, []string{proposalID}, ev.Hash,
		map[string]string{"payload_hash": payloadHash})
	return &r.events[len(r.events)-1], nil
}

// Events returns a copy of the chained transition sequence.
func (r *Registry) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// VerifyEventChain recomputes every link and hash, reporting the first
// inconsistency.
func (r *Registry) VerifyEventChain() error {
	prev := genesisHash
	for i, ev := range r.events {
		if ev.PrevHash != prev {
			return fmt.Errorf("governance: event %d prev hash mismatch", i)
		}
		want, err := contentHash(map[string]any{
			"seq":          ev.Seq,
			"proposal_id":  ev.ProposalID,
			"action":       ev.Action,
			"payload_hash": ev.PayloadHash,
			"prev_hash":    ev.PrevHash,
		})
		if err != nil {
			return err
		}
		if want != ev.Hash {
			return fmt.Errorf("governance: event %d hash mismatch", i)
		}
		prev = ev.Hash
	}
	return nil
}
