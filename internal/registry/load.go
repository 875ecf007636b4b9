package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load errors are typed so the composition layer can distinguish a missing
// registry from a corrupt one when deciding how to degrade.
var (
	ErrNotFound     = fmt.Errorf("registry: file not found")
	ErrMalformed    = fmt.Errorf("registry: malformed JSON")
	ErrNoArtifacts  = fmt.Errorf("registry: missing artifacts key")
	ErrWrongVersion = fmt.Errorf("registry: unexpected registry_version")
)

// LoadSnapshot reads a registry file for dispatch-time lookups. Decoding is
// lenient: any JSON object carrying an "artifacts" array is accepted, with or
// without a registry_version tag, so hand-seeded trial registries load the
// same as migrated v2 files.
func LoadSnapshot(path string) (*V2Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}

	var raw struct {
		RegistryVersion       string     `json:"registry_version"`
		TriggerThreshold      string     `json:"trigger_threshold"`
		T1SemanticSections    []string   `json:"t1_semantic_sections"`
		UnknownArtifactPolicy string     `json:"unknown_artifact_policy"`
		UpdatedAt             string     `json:"updated_at"`
		Artifacts             *[]V2Entry `json:"artifacts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if raw.Artifacts == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoArtifacts, path)
	}

	return &V2Registry{
		RegistryVersion:       raw.RegistryVersion,
		TriggerThreshold:      raw.TriggerThreshold,
		T1SemanticSections:    raw.T1SemanticSections,
		UnknownArtifactPolicy: raw.UnknownArtifactPolicy,
		UpdatedAt:             raw.UpdatedAt,
		Artifacts:             *raw.Artifacts,
	}, nil
}

// MarshalV2 renders a registry as indented JSON with a trailing newline, the
// on-disk form the migration CLI writes.
func MarshalV2(reg *V2Registry) (string, error) {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("registry: marshal: %w", err)
	}
	return string(data) + "\n", nil
}

// LoadV2 reads a strict registry.v2 file, rejecting anything without the v2
// version tag. The migration CLI uses it to sanity-check its own output.
func LoadV2(path string) (*V2Registry, error) {
	reg, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if reg.RegistryVersion != VersionV2 {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongVersion, reg.RegistryVersion, VersionV2)
	}
	return reg, nil
}
