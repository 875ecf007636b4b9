// Package registry implements the standing artifact registry: the v2 on-disk
// schema the pipeline reads at dispatch time, and the one-time v1→v2
// migration with fail-closed classification of every artifact.
package registry

// Registry schema version tags.
const (
	VersionV1 = "registry.v1"
	VersionV2 = "registry.v2"
)

// UnknownArtifactPolicy is fixed by the v2 contract: artifacts the registry
// does not recognize never trigger dispatch.
const UnknownArtifactPolicy = "fail_closed_never_trigger"

// Artifact classes in the v2 contract.
const (
	ClassSourceProcess     = "source_process"
	ClassSourceReference   = "source_reference"
	ClassProjectionSummary = "projection_summary"
	ClassSystemTelemetry   = "system_telemetry"
	ClassExecutionOutput   = "execution_output"
	ClassReflection        = "reflection"
)

// Trigger policies.
const (
	TriggerEligible           = "eligible"
	TriggerManualOverrideOnly = "manual_override_only"
	TriggerNever              = "never"
)

// Propagation modes.
const (
	PropagationProjectionAuto       = "projection_auto"
	PropagationSourceTask           = "source_task"
	PropagationSourceMechanicalAuto = "source_mechanical_auto"
)

// V1Entry is one artifact row in a registry.v1 file. Fields are pointers or
// left zero-valued where v1 producers were sloppy; migration blocks entries
// that miss required data rather than guessing.
type V1Entry struct {
	ArtifactID   string  `json:"artifact_id"`
	Path         string  `json:"path"`
	Domain       string  `json:"domain"`
	Business     string  `json:"business"`
	LastKnownSHA *string `json:"last_known_sha,omitempty"`
	RegisteredAt string  `json:"registered_at,omitempty"`
	Active       *bool   `json:"active,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// V1Registry is a registry.v1 file.
type V1Registry struct {
	RegistryVersion    string    `json:"registry_version"`
	TriggerThreshold   string    `json:"trigger_threshold"`
	T1SemanticSections []string  `json:"t1_semantic_sections"`
	UpdatedAt          string    `json:"updated_at,omitempty"`
	Artifacts          []V1Entry `json:"artifacts"`
}

// V2Entry is one artifact row in a registry.v2 file.
type V2Entry struct {
	ArtifactID      string   `json:"artifact_id"`
	Path            string   `json:"path"`
	Domain          string   `json:"domain"`
	Business        string   `json:"business"`
	ArtifactClass   string   `json:"artifact_class"`
	TriggerPolicy   string   `json:"trigger_policy"`
	PropagationMode string   `json:"propagation_mode"`
	DependsOn       []string `json:"depends_on"`
	Produces        []string `json:"produces"`
	LastKnownSHA    *string  `json:"last_known_sha"`
	RegisteredAt    string   `json:"registered_at,omitempty"`
	Active          bool     `json:"active"`
	Notes           string   `json:"notes,omitempty"`
}

// V2Registry is a registry.v2 file.
type V2Registry struct {
	RegistryVersion       string    `json:"registry_version"`
	TriggerThreshold      string    `json:"trigger_threshold"`
	T1SemanticSections    []string  `json:"t1_semantic_sections"`
	UnknownArtifactPolicy string    `json:"unknown_artifact_policy"`
	UpdatedAt             string    `json:"updated_at,omitempty"`
	Artifacts             []V2Entry `json:"artifacts"`
}

// Lookup returns the entry for artifactID, or nil when the registry does not
// track it.
func (r *V2Registry) Lookup(artifactID string) *V2Entry {
	for i := range r.Artifacts {
		if r.Artifacts[i].ArtifactID == artifactID {
			return &r.Artifacts[i]
		}
	}
	return nil
}
