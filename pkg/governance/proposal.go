// Package governance manages the proposal lifecycle: creation, voting,
// tally, timelocked execution, cancellation and expiry. All vote and quorum
// arithmetic runs through the certified engine so every transition is
// replayable from the session audit log.
package governance

import (
	"errors"

	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// Status is the proposal lifecycle state.
// ACTIVE -> {PASSED, REJECTED, EXPIRED, CANCELLED}; EXECUTED only from
// PASSED.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPassed    Status = "PASSED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusExecuted  Status = "EXECUTED"
)

// Tally reasons recorded on REJECTED proposals.
const (
	ReasonInsufficientQuorum = "insufficient_quorum"
	// ReasonNoMajority covers ties as well: passing requires strictly
	// more yes-weight than no-weight.
	ReasonNoMajority = "no_majority"
)

// State errors: recoverable rejections of invalid transitions. No state is
// mutated when one of these is returned.
var (
	ErrNotFound         = errors.New("governance: proposal not found")
	ErrIneligible       = errors.New("governance: proposer is not eligible")
	ErrCooldown         = errors.New("governance: proposer cooldown has not elapsed")
	ErrNotActive        = errors.New("governance: proposal is not active")
	ErrVotingClosed     = errors.New("governance: voting window has closed")
	ErrVotingOpen       = errors.New("governance: voting window has not ended")
	ErrAlreadyVoted     = errors.New("governance: identity has already voted")
	ErrNonPositivePower = errors.New("governance: voting power must be positive")
	ErrNotPassed        = errors.New("governance: proposal has not passed")
	ErrTimelock         = errors.New("governance: execution timelock has not elapsed")
	ErrAlreadyExecuted  = errors.New("governance: proposal already executed")
	ErrNotProposer      = errors.New("governance: only the proposer may cancel")
)

// Proposal is one governed decision. TotalSupplySnapshot is immutable from
// creation: later supply changes cannot retroactively alter the quorum
// requirement.
type Proposal struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Proposer    string       `json:"proposer"`
	Type        ProposalType `json:"type"`
	Params      Params       `json:"params"`

	CreatedAt           uint64 `json:"created_at"`
	VotingEndsAt        uint64 `json:"voting_ends_at"`
	EarliestExecutionAt uint64 `json:"earliest_execution_at"`

	Status      Status `json:"status"`
	TallyReason string `json:"tally_reason,omitempty"`

	YesVotes            fixed.Value `json:"yes_votes"`
	NoVotes             fixed.Value `json:"no_votes"`
	QuorumRequired      fixed.Value `json:"quorum_required"`
	TotalSupplySnapshot fixed.Value `json:"total_supply_snapshot"`

	Executed   bool   `json:"executed"`
	ExecutedAt uint64 `json:"executed_at,omitempty"`

	// voters enforces at-most-one vote per identity, independent of
	// weight.
	voters map[string]bool
}

// HasVoted reports whether the identity already voted on this proposal.
func (p *Proposal) HasVoted(identity string) bool { return p.voters[identity] }

// ConfigMutation is the type-specific record produced by execution; the
// orchestration layer applies it to the platform configuration.
type ConfigMutation struct {
	ProposalID string            `json:"proposal_id"`
	Type       ProposalType      `json:"type"`
	Changes    map[string]string `json:"changes"`
	ExecutedAt uint64            `json:"executed_at"`
}
