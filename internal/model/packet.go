package model

import (
	"fmt"
	"time"
)

// SchemaVersion is the fixed tag carried by every dispatch packet.
const SchemaVersion = "dispatch.v1"

// TriggerArtifactDelta is the only trigger kind this pipeline emits.
const TriggerArtifactDelta = "artifact_delta"

// QueueState is the lifecycle state of a queue entry. Transitions are
// monotonic: enqueued → processed → skipped, or enqueued → error.
type QueueState string

const (
	StateEnqueued  QueueState = "enqueued"
	StateProcessed QueueState = "processed"
	StateError     QueueState = "error"
	StateSkipped   QueueState = "skipped"
)

// DispatchPacket is the canonical unit of admitted work, produced by the
// orchestrator and consumed by the dispatch queue.
type DispatchPacket struct {
	SchemaVersion string  `json:"schema_version"`
	DispatchID    string  `json:"dispatch_id"`
	Mode          string  `json:"mode"`
	Business      string  `json:"business"`
	Trigger       string  `json:"trigger"`
	ArtifactID    string  `json:"artifact_id"`
	BeforeSHA     *string `json:"before_sha"`
	AfterSHA      string  `json:"after_sha"`

	AreaAnchor                   string   `json:"area_anchor"`
	LocationAnchors              []string `json:"location_anchors"`
	ProvisionalDeliverableFamily string   `json:"provisional_deliverable_family"`
	CurrentTruth                 string   `json:"current_truth"`
	NextScopeNow                 string   `json:"next_scope_now"`
	AdjacentLater                []string `json:"adjacent_later"`

	RecommendedRoute string     `json:"recommended_route"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	Confidence       float64    `json:"confidence"`
	EvidenceRefs     []string   `json:"evidence_refs"`
	CreatedAt        string     `json:"created_at"`
	QueueState       QueueState `json:"queue_state"`
}

// DedupeKey mirrors DeltaEvent.DedupeKey for an already-built packet.
func (p DispatchPacket) DedupeKey() string {
	return dedupeKey(p.ArtifactID, p.BeforeSHA, p.AfterSHA)
}

// DispatchID derives a deterministic dispatch identifier from the run clock
// and a per-run sequence number, so identical replays of the same logical
// event reproduce the same id. Format: DSP-<yyyymmddHHMMSS>-<%04d>.
func DispatchID(t time.Time, seq int) string {
	return fmt.Sprintf("DSP-%s-%04d", t.UTC().Format("20060102150405"), seq)
}

// Timestamp renders t in the pipeline's on-disk timestamp format
// (UTC, millisecond precision, Z suffix).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
