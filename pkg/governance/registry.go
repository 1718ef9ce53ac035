package governance

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/certmath"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// Config fixes the governance windows and ratios. Times are abstract
// ticks supplied by the caller, never wall clock.
type Config struct {
	VotingPeriod        uint64
	ExecutionDelay      uint64
	ProposerCooldown    uint64
	QuorumThreshold     fixed.Value // fraction of the supply snapshot
	MaxVotingPowerRatio fixed.Value // cap on one vote's effective weight
}

// EligibilityChecker decides whether an identity may propose. The host
// plugs its account/reputation layer in here.
type EligibilityChecker interface {
	Eligible(proposer string) bool
}

// allowAll is the default checker.
type allowAll struct{}

func (allowAll) Eligible(string) bool { return true }

// Registry is the in-memory proposal store and state machine. It performs
// no internal locking: a single proposal's vote/tally/execute sequence must
// be serialized by the embedding host (single-writer discipline), and hosts
// running the registry from multiple goroutines wrap it in their own mutex.
type Registry struct {
	cfg  Config
	elig EligibilityChecker

	proposals map[string]*Proposal
	order     []string // creation order, for deterministic sweeps
	lastByID  map[string]uint64
	seq       uint64
	events    []Event
}

// NewRegistry builds an empty registry. A nil checker admits every
// proposer.
func NewRegistry(cfg Config, elig EligibilityChecker) *Registry {
	if elig == nil {
		elig = allowAll{}
	}
	return &Registry{
		cfg:       cfg,
		elig:      elig,
		proposals: make(map[string]*Proposal),
		lastByID:  make(map[string]uint64),
	}
}

// Get returns the proposal with the given id.
func (r *Registry) Get(id string) (*Proposal, error) {
	p, ok := r.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// CreateRequest carries everything creation needs; TotalSupply is the
// voting-power supply at creation time and is snapshotted immutably.
type CreateRequest struct {
	Title       string
	Description string
	Proposer    string
	Type        ProposalType
	RawParams   json.RawMessage
	TotalSupply fixed.Value
}

// CreateProposal validates the request and opens the voting window.
// Requires an eligible proposer, an elapsed cooldown since the proposer's
// last proposal, and type-specific parameter validation.
func (r *Registry) CreateProposal(l *audit.Log, req CreateRequest, now uint64) (*Proposal, error) {
	if !r.elig.Eligible(req.Proposer) {
		return nil, fmt.Errorf("%w: %s", ErrIneligible, req.Proposer)
	}
	if last, ok := r.lastByID[req.Proposer]; ok && now < last+r.cfg.ProposerCooldown {
		return nil, fmt.Errorf("%w: next allowed at tick %d", ErrCooldown, last+r.cfg.ProposerCooldown)
	}
	params, err := DecodeParams(req.Type, req.RawParams)
	if err != nil {
		return nil, err
	}
	quorum, err := certmath.Mul(l, req.TotalSupply, r.cfg.QuorumThreshold)
	if err != nil {
		return nil, fmt.Errorf("governance: quorum computation: %w", err)
	}

	r.seq++
	p := &Proposal{
		ID:                  fmt.Sprintf("prop-%06d", r.seq),
		Title:               req.Title,
		Description:         req.Description,
		Proposer:            req.Proposer,
		Type:                req.Type,
		Params:              params,
		CreatedAt:           now,
		VotingEndsAt:        now + r.cfg.VotingPeriod,
		EarliestExecutionAt: now + r.cfg.VotingPeriod + r.cfg.ExecutionDelay,
		Status:              StatusActive,
		QuorumRequired:      quorum,
		TotalSupplySnapshot: req.TotalSupply,
		voters:              make(map[string]bool),
	}
	r.proposals[p.ID] = p
	r.order = append(r.order, p.ID)
	r.lastByID[req.Proposer] = now

	if _, err := r.appendEvent(l, p.ID, "create", map[string]any{
		"proposer":        p.Proposer,
		"type":            string(p.Type),
		"quorum_required": p.QuorumRequired.String(),
		"supply_snapshot": p.TotalSupplySnapshot.String(),
		"voting_ends_at":  p.VotingEndsAt,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// CastVote records one identity's vote. The effective weight is capped at
// supply_snapshot * MaxVotingPowerRatio; the excess is saturated, not
// rejected, and the saturation is logged.
func (r *Registry) CastVote(l *audit.Log, id, voter string, support bool, power fixed.Value, now uint64) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	if p.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, id, p.Status)
	}
	if now >= p.VotingEndsAt {
		return fmt.Errorf("%w: ended at tick %d", ErrVotingClosed, p.VotingEndsAt)
	}
	if power.IsZero() {
		return ErrNonPositivePower
	}
	if p.voters[voter] {
		return fmt.Errorf("%w: %s on %s", ErrAlreadyVoted, voter, id)
	}

	maxWeight, err := certmath.Mul(l, p.TotalSupplySnapshot, r.cfg.MaxVotingPowerRatio)
	if err != nil {
		return fmt.Errorf("governance: vote cap computation: %w", err)
	}
	effective := power
	if power.Cmp(maxWeight) > 0 {
		effective = maxWeight
		l.Append("governance.vote_cap", []string{id, voter, power.String()}, effective.String(),
			map[string]string{"saturated": "true"})
	}

	// Accumulate into a local first: a failed vote must leave the tally
	// untouched.
	tally := p.NoVotes
	if support {
		tally = p.YesVotes
	}
	sum, err := certmath.Add(l, tally, effective)
	if err != nil {
		return fmt.Errorf("governance: vote accumulation: %w", err)
	}
	if support {
		p.YesVotes = sum
	} else {
		p.NoVotes = sum
	}
	p.voters[voter] = true

	_, err = r.appendEvent(l, id, "vote", map[string]any{
		"voter":   voter,
		"support": support,
		"weight":  effective.String(),
	})
	return err
}

// Tally closes an ACTIVE proposal once its voting window has ended.
// Quorum is measured on total turnout; without it the proposal is REJECTED
// with reason insufficient_quorum regardless of the yes/no split. Ties
// reject: passing requires strictly more yes than no.
func (r *Registry) Tally(l *audit.Log, id string, now uint64) (*Proposal, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotActive, id, p.Status)
	}
	if now < p.VotingEndsAt {
		return nil, fmt.Errorf("%w: ends at tick %d", ErrVotingOpen, p.VotingEndsAt)
	}

	turnout, err := certmath.Add(l, p.YesVotes, p.NoVotes)
	if err != nil {
		return nil, fmt.Errorf("governance: turnout computation: %w", err)
	}
	switch {
	case certmath.Cmp(l, turnout, p.QuorumRequired) < 0:
		p.Status = StatusRejected
		p.TallyReason = ReasonInsufficientQuorum
	case certmath.Cmp(l, p.YesVotes, p.NoVotes) > 0:
		p.Status = StatusPassed
	default:
		p.Status = StatusRejected
		p.TallyReason = ReasonNoMajority
	}

	if _, err := r.appendEvent(l, id, "tally", map[string]any{
		"status":  string(p.Status),
		"reason":  p.TallyReason,
		"yes":     p.YesVotes.String(),
		"no":      p.NoVotes.String(),
		"turnout": turnout.String(),
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Execute runs a PASSED proposal once its timelock has elapsed, exactly
// once, and returns the configuration mutation to apply.
func (r *Registry) Execute(l *audit.Log, id string, now uint64) (*ConfigMutation, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Executed || p.Status == StatusExecuted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExecuted, id)
	}
	if p.Status != StatusPassed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPassed, id, p.Status)
	}
	if now < p.EarliestExecutionAt {
		return nil, fmt.Errorf("%w: executable at tick %d", ErrTimelock, p.EarliestExecutionAt)
	}

	mutation := &ConfigMutation{
		ProposalID: id,
		Type:       p.Type,
		Changes:    p.Params.Mutation(),
		ExecutedAt: now,
	}
	p.Status = StatusExecuted
	p.Executed = true
	p.ExecutedAt = now

	if _, err := r.appendEvent(l, id, "execute", map[string]any{
		"type":    string(p.Type),
		"changes": mutation.Changes,
	}); err != nil {
		return nil, err
	}
	return mutation, nil
}

// Cancel withdraws an ACTIVE proposal; only the original proposer may.
func (r *Registry) Cancel(l *audit.Log, id, caller string) error {
	p, err := r.Get(id)
	if err != nil {
		return err
	}
	if p.Proposer != caller {
		return fmt.Errorf("%w: %s", ErrNotProposer, caller)
	}
	if p.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, id, p.Status)
	}
	p.Status = StatusCancelled
	_, err = r.appendEvent(l, id, "cancel", map[string]any{"caller": caller})
	return err
}

// ExpireStale sweeps ACTIVE proposals in deterministic identifier order and
// expires any whose voting window elapsed without a tally. Returns the
// expired ids.
func (r *Registry) ExpireStale(l *audit.Log, now uint64) ([]string, error) {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	sort.Strings(ids)

	var expired []string
	for _, id := range ids {
		p := r.proposals[id]
		if p.Status != StatusActive || now < p.VotingEndsAt {
			continue
		}
		p.Status = StatusExpired
		if _, err := r.appendEvent(l, id, "expire", map[string]any{
			"voting_ended_at": p.VotingEndsAt,
		}); err != nil {
			return expired, err
		}
		expired = append(expired, id)
	}
	return expired, nil
}
