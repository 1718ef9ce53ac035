// Package config loads the economic constitution: the externally fixed
// constants every core component enforces. All monetary and ratio fields
// are fixed-point values parsed from decimal strings; nothing here is ever
// computed at runtime.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noetic-labs/psimesh/core/pkg/bounds"
	"github.com/noetic-labs/psimesh/core/pkg/fixed"
)

// EnvConstitution names the environment variable pointing at a YAML
// constitution file; unset means built-in defaults.
const EnvConstitution = "PSIMESH_CONSTITUTION"

// Amount is a fixed.Value that unmarshals from a YAML decimal string.
type Amount struct {
	fixed.Value
}

// UnmarshalYAML implements yaml.Unmarshaler via the canonical parser.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	v, err := fixed.Parse(node.Value)
	if err != nil {
		return err
	}
	a.Value = v
	return nil
}

// MarshalYAML renders the canonical decimal form.
func (a Amount) MarshalYAML() (any, error) { return a.String(), nil }

// GovernanceConfig fixes the proposal windows and voting ratios. Windows
// are abstract ticks, not wall-clock durations.
type GovernanceConfig struct {
	QuorumThreshold     Amount `yaml:"quorum_threshold"`
	MaxVotingPowerRatio Amount `yaml:"max_voting_power_ratio"`
	VotingPeriod        uint64 `yaml:"voting_period"`
	ExecutionDelay      uint64 `yaml:"execution_delay"`
	ProposerCooldown    uint64 `yaml:"proposer_cooldown"`
}

// RewardBounds fixes one reward class's constitutional limits.
type RewardBounds struct {
	Min             Amount `yaml:"min"`
	Max             Amount `yaml:"max"`
	PoolFractionMin Amount `yaml:"pool_fraction_min"`
	PoolFractionMax Amount `yaml:"pool_fraction_max"`
	RecipientCap    Amount `yaml:"recipient_epoch_cap"`
	SupplyDeltaMax  Amount `yaml:"supply_delta_max"`
}

// AllocationConfig fixes the distribution engine's parameters.
type AllocationConfig struct {
	MinParticipants   int    `yaml:"min_participants"`
	MaxDominanceRatio Amount `yaml:"max_dominance_ratio"`
}

// Constitution is the full configuration surface.
type Constitution struct {
	Governance  GovernanceConfig        `yaml:"governance"`
	Rewards     map[string]RewardBounds `yaml:"rewards"`
	Allocation  AllocationConfig        `yaml:"allocation"`
	SelfTestPin string                  `yaml:"self_test_pin"`
}

// Default returns the reference constitution. Ratios and caps mirror the
// platform's published economic parameters; tests run against these.
func Default() *Constitution {
	classBounds := RewardBounds{
		Min:             Amount{fixed.MustParse("0.000001")},
		Max:             Amount{fixed.MustParse("1000000")},
		PoolFractionMin: Amount{fixed.MustParse("0.01")},
		PoolFractionMax: Amount{fixed.MustParse("0.15")},
		RecipientCap:    Amount{fixed.MustParse("50000")},
		SupplyDeltaMax:  Amount{fixed.MustParse("1000000")},
	}
	rewards := make(map[string]RewardBounds)
	for _, class := range []string{"CHR", "FLX", "RES", "PsiSync", "ATR", "NOD"} {
		rewards[class] = classBounds
	}
	return &Constitution{
		Governance: GovernanceConfig{
			QuorumThreshold:     Amount{fixed.MustParse("0.5")},
			MaxVotingPowerRatio: Amount{fixed.MustParse("0.2")},
			VotingPeriod:        1000,
			ExecutionDelay:      100,
			ProposerCooldown:    500,
		},
		Rewards: rewards,
		Allocation: AllocationConfig{
			MinParticipants:   3,
			MaxDominanceRatio: Amount{fixed.MustParse("0.25")},
		},
	}
}

// Load returns the defaults overlaid with the YAML file named by
// PSIMESH_CONSTITUTION, if set, and validates the result.
func Load() (*Constitution, error) {
	c := Default()
	if path := os.Getenv(EnvConstitution); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read constitution: %w", err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("config: parse constitution: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects a constitution whose constants are internally
// inconsistent. Loading fails instead of deferring surprises to runtime.
func (c *Constitution) Validate() error {
	one := fixed.One
	if c.Governance.QuorumThreshold.IsZero() || c.Governance.QuorumThreshold.Cmp(one) > 0 {
		return fmt.Errorf("config: quorum threshold %s outside (0, 1]", c.Governance.QuorumThreshold)
	}
	if c.Governance.MaxVotingPowerRatio.IsZero() || c.Governance.MaxVotingPowerRatio.Cmp(one) > 0 {
		return fmt.Errorf("config: max voting power ratio %s outside (0, 1]", c.Governance.MaxVotingPowerRatio)
	}
	if c.Allocation.MaxDominanceRatio.IsZero() || c.Allocation.MaxDominanceRatio.Cmp(one) > 0 {
		return fmt.Errorf("config: dominance ratio %s outside (0, 1]", c.Allocation.MaxDominanceRatio)
	}
	if c.Allocation.MinParticipants < 1 {
		return fmt.Errorf("config: min participants %d below 1", c.Allocation.MinParticipants)
	}
	for class, rb := range c.Rewards {
		if rb.Min.Cmp(rb.Max.Value) > 0 {
			return fmt.Errorf("config: class %s reward min %s above max %s", class, rb.Min, rb.Max)
		}
		if rb.PoolFractionMin.Cmp(rb.PoolFractionMax.Value) > 0 {
			return fmt.Errorf("config: class %s pool fraction min above max", class)
		}
		if rb.PoolFractionMax.Cmp(one) > 0 {
			return fmt.Errorf("config: class %s pool fraction max above 1", class)
		}
	}
	return nil
}

// GuardLimits converts the reward table into the bounds guard's form.
func (c *Constitution) GuardLimits() map[string]bounds.ClassLimits {
	out := make(map[string]bounds.ClassLimits, len(c.Rewards))
	for class, rb := range c.Rewards {
		out[class] = bounds.ClassLimits{
			Min:             rb.Min.Value,
			Max:             rb.Max.Value,
			PoolFractionMin: rb.PoolFractionMin.Value,
			PoolFractionMax: rb.PoolFractionMax.Value,
			RecipientCap:    rb.RecipientCap.Value,
			SupplyDeltaMax:  rb.SupplyDeltaMax.Value,
		}
	}
	return out
}

// NewGuard builds the economic bounds guard from the constitution.
func (c *Constitution) NewGuard() *bounds.Guard {
	return bounds.NewGuard(c.GuardLimits(), c.Allocation.MaxDominanceRatio.Value)
}
