package governance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ProposalType enumerates the governed parameter domains. The set is
// closed: Params below is a sealed union and every dispatch site switches
// exhaustively, so adding a type is a compile error until all sites know it.
type ProposalType string

const (
	TypeStorageReplicationFactor   ProposalType = "storage_replication_factor"
	TypeAIModelVersionApproval     ProposalType = "ai_model_version_approval"
	TypeNetworkBandwidthParameters ProposalType = "network_bandwidth_parameters"
	TypeInfrastructureUpgrade      ProposalType = "infrastructure_upgrade"
	TypeSecurityPatchDeployment    ProposalType = "security_patch_deployment"
)

// ProposalTypes lists every known type in stable order.
func ProposalTypes() []ProposalType {
	return []ProposalType{
		TypeStorageReplicationFactor,
		TypeAIModelVersionApproval,
		TypeNetworkBandwidthParameters,
		TypeInfrastructureUpgrade,
		TypeSecurityPatchDeployment,
	}
}

// Params is the sealed parameter union. Implementations validate their own
// bounds beyond what the JSON schema can express and render the
// configuration mutation applied on execution.
type Params interface {
	Type() ProposalType
	// Mutation returns the configuration changes this proposal applies
	// when executed, as stable key -> canonical string value pairs.
	Mutation() map[string]string

	sealed()
}

// StorageReplicationParams tunes the storage layer's replication factor.
type StorageReplicationParams struct {
	ReplicationFactor int `json:"replication_factor"` // [1, 10]
}

func (StorageReplicationParams) Type() ProposalType { return TypeStorageReplicationFactor }
func (StorageReplicationParams) sealed()            {}
func (p StorageReplicationParams) Mutation() map[string]string {
	return map[string]string{"storage.replication_factor": fmt.Sprintf("%d", p.ReplicationFactor)}
}

// AIModelVersionParams approves a specific model version for production.
type AIModelVersionParams struct {
	ModelID string `json:"model_id"`
	Version string `json:"version"` // semantic version
}

func (AIModelVersionParams) Type() ProposalType { return TypeAIModelVersionApproval }
func (AIModelVersionParams) sealed()            {}
func (p AIModelVersionParams) Mutation() map[string]string {
	return map[string]string{"ai.approved_model." + p.ModelID: p.Version}
}

// NetworkBandwidthParams adjusts the network plane's bandwidth envelope.
type NetworkBandwidthParams struct {
	MinBandwidthMbps int `json:"min_bandwidth_mbps"`
	MaxBandwidthMbps int `json:"max_bandwidth_mbps"`
	LatencyTargetMs  int `json:"latency_target_ms"`
}

func (NetworkBandwidthParams) Type() ProposalType { return TypeNetworkBandwidthParameters }
func (NetworkBandwidthParams) sealed()            {}
func (p NetworkBandwidthParams) Mutation() map[string]string {
	return map[string]string{
		"network.min_bandwidth_mbps": fmt.Sprintf("%d", p.MinBandwidthMbps),
		"network.max_bandwidth_mbps": fmt.Sprintf("%d", p.MaxBandwidthMbps),
		"network.latency_target_ms":  fmt.Sprintf("%d", p.LatencyTargetMs),
	}
}

// InfrastructureUpgradeParams schedules a component upgrade.
type InfrastructureUpgradeParams struct {
	Component              string `json:"component"`
	TargetVersion          string `json:"target_version"` // semantic version
	MaintenanceWindowTicks uint64 `json:"maintenance_window_ticks"`
}

func (InfrastructureUpgradeParams) Type() ProposalType { return TypeInfrastructureUpgrade }
func (InfrastructureUpgradeParams) sealed()            {}
func (p InfrastructureUpgradeParams) Mutation() map[string]string {
	return map[string]string{
		"infra.upgrade." + p.Component:        p.TargetVersion,
		"infra.upgrade_window." + p.Component: fmt.Sprintf("%d", p.MaintenanceWindowTicks),
	}
}

// SecurityPatchParams deploys a security patch with a deadline.
type SecurityPatchParams struct {
	PatchID      string `json:"patch_id"`
	Severity     string `json:"severity"` // low|medium|high|critical
	DeadlineTick uint64 `json:"deadline_tick"`
}

func (SecurityPatchParams) Type() ProposalType { return TypeSecurityPatchDeployment }
func (SecurityPatchParams) sealed()            {}
func (p SecurityPatchParams) Mutation() map[string]string {
	return map[string]string{
		"security.patch." + p.PatchID: fmt.Sprintf("deploy_by:%d", p.DeadlineTick),
	}
}

// Per-type JSON schemas, compiled once at package init. Raw submissions are
// validated here before decoding into the typed union; numeric bounds the
// schema cannot express (semver, cross-field ordering) are checked after.
var paramSchemas = func() map[ProposalType]*jsonschema.Schema {
	sources := map[ProposalType]string{
		TypeStorageReplicationFactor: `{
			"type": "object",
			"required": ["replication_factor"],
			"additionalProperties": false,
			"properties": {
				"replication_factor": {"type": "integer", "minimum": 1, "maximum": 10}
			}
		}`,
		TypeAIModelVersionApproval: `{
			"type": "object",
			"required": ["model_id", "version"],
			"additionalProperties": false,
			"properties": {
				"model_id": {"type": "string", "minLength": 1},
				"version": {"type": "string", "minLength": 1}
			}
		}`,
		TypeNetworkBandwidthParameters: `{
			"type": "object",
			"required": ["min_bandwidth_mbps", "max_bandwidth_mbps", "latency_target_ms"],
			"additionalProperties": false,
			"properties": {
				"min_bandwidth_mbps": {"type": "integer", "minimum": 1},
				"max_bandwidth_mbps": {"type": "integer", "minimum": 1},
				"latency_target_ms": {"type": "integer", "minimum": 1}
			}
		}`,
		TypeInfrastructureUpgrade: `{
			"type": "object",
			"required": ["component", "target_version"],
			"additionalProperties": false,
			"properties": {
				"component": {"type": "string", "minLength": 1},
				"target_version": {"type": "string", "minLength": 1},
				"maintenance_window_ticks": {"type": "integer", "minimum": 0}
			}
		}`,
		TypeSecurityPatchDeployment: `{
			"type": "object",
			"required": ["patch_id", "severity", "deadline_tick"],
			"additionalProperties": false,
			"properties": {
				"patch_id": {"type": "string", "minLength": 1},
				"severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
				"deadline_tick": {"type": "integer", "minimum": 0}
			}
		}`,
	}
	out := make(map[ProposalType]*jsonschema.Schema, len(sources))
	for ptype, src := range sources {
		c := jsonschema.NewCompiler()
		url := fmt.Sprintf("schema:///%s.json", ptype)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			panic(err)
		}
		out[ptype] = c.MustCompile(url)
	}
	return out
}()

// DecodeParams validates raw against the type's schema and decodes it into
// the sealed union, applying the bound checks the schema cannot express.
func DecodeParams(ptype ProposalType, raw json.RawMessage) (Params, error) {
	schema, ok := paramSchemas[ptype]
	if !ok {
		return nil, fmt.Errorf("governance: unknown proposal type %q", ptype)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("governance: malformed parameters: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("governance: parameters for %s rejected: %w", ptype, err)
	}

	switch ptype {
	case TypeStorageReplicationFactor:
		var p StorageReplicationParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeAIModelVersionApproval:
		var p AIModelVersionParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if _, err := semver.NewVersion(p.Version); err != nil {
			return nil, fmt.Errorf("governance: version %q is not semantic: %w", p.Version, err)
		}
		return p, nil
	case TypeNetworkBandwidthParameters:
		var p NetworkBandwidthParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if p.MaxBandwidthMbps < p.MinBandwidthMbps {
			return nil, fmt.Errorf("governance: max bandwidth %d below min %d",
				p.MaxBandwidthMbps, p.MinBandwidthMbps)
		}
		return p, nil
	case TypeInfrastructureUpgrade:
		var p InfrastructureUpgradeParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if _, err := semver.NewVersion(p.TargetVersion); err != nil {
			return nil, fmt.Errorf("governance: target version %q is not semantic: %w", p.TargetVersion, err)
		}
		return p, nil
	case TypeSecurityPatchDeployment:
		var p SecurityPatchParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("governance: unknown proposal type %q", ptype)
}
