// Package model defines the wire types shared across the dispatch pipeline:
// artifact-delta events reported by the upstream change detector, dispatch
// packets admitted to the queue, and queue lifecycle states.
package model

import "fmt"

// DeltaEvent is one reported change to a tracked artifact. Events are
// ephemeral: produced by an external change detector, consumed once per
// orchestrator run.
type DeltaEvent struct {
	ArtifactID string `json:"artifact_id"`
	Business   string `json:"business"`
	// BeforeSHA is nil on first observation of the artifact (no delta to act on).
	BeforeSHA       *string  `json:"before_sha"`
	AfterSHA        string   `json:"after_sha"`
	Path            string   `json:"path"`
	Domain          string   `json:"domain"`
	ChangedSections []string `json:"changed_sections"`
}

// DedupeKey identifies the logical change regardless of which dispatch
// reported it. Format: "<artifact_id>:<before_sha|null>:<after_sha>".
func (e DeltaEvent) DedupeKey() string {
	return dedupeKey(e.ArtifactID, e.BeforeSHA, e.AfterSHA)
}

func dedupeKey(artifactID string, beforeSHA *string, afterSHA string) string {
	before := "null"
	if beforeSHA != nil {
		before = *beforeSHA
	}
	return fmt.Sprintf("%s:%s:%s", artifactID, before, afterSHA)
}
