package queue

import (
	"fmt"
	"strings"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
)

// Validation failure reasons, stable strings recorded in telemetry.
const (
	ReasonMissingDispatchID = "missing_dispatch_id"
	ReasonEmptyDispatchID   = "empty_dispatch_id"
	ReasonWrongSchema       = "wrong_schema_version"
	ReasonWrongMode         = "wrong_mode"
	ReasonEmptyEvidence     = "empty_evidence_refs"
	ReasonInvalidStatus     = "invalid_status"
)

// ValidationResult reports whether a packet passed admission validation.
type ValidationResult struct {
	Valid  bool
	Reason string
	Detail string
}

func invalid(reason, detail string) ValidationResult {
	return ValidationResult{Reason: reason, Detail: detail}
}

// ValidatePacket checks a dispatch packet against the queue's acceptance
// criteria: non-empty dispatch_id, exact schema version, the queue's own
// mode, non-empty evidence_refs, and a configured status. Checks run in a
// fixed order so a packet failing several rules always reports the same one.
func ValidatePacket(p model.DispatchPacket, mode string, cfg *config.Config) ValidationResult {
	if p.DispatchID == "" {
		return invalid(ReasonMissingDispatchID, "dispatch_id is required")
	}
	if strings.TrimSpace(p.DispatchID) == "" {
		return invalid(ReasonEmptyDispatchID, "dispatch_id must not be empty")
	}
	if p.SchemaVersion != model.SchemaVersion {
		return invalid(ReasonWrongSchema,
			fmt.Sprintf("schema_version must be %q, got %q", model.SchemaVersion, p.SchemaVersion))
	}
	if p.Mode != mode {
		return invalid(ReasonWrongMode, fmt.Sprintf("mode must be %q, got %q", mode, p.Mode))
	}
	if len(p.EvidenceRefs) == 0 {
		return invalid(ReasonEmptyEvidence, "evidence_refs must be a non-empty array")
	}
	if !cfg.ValidStatus(p.Status) {
		return invalid(ReasonInvalidStatus, fmt.Sprintf("status %q is not a valid dispatch status", p.Status))
	}
	return ValidationResult{Valid: true}
}
