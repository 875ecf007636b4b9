// Package queue implements the idempotent in-memory dispatch queue: duplicate
// suppression on both dispatch_id and the artifact-level dedupe key, a
// monotonic lifecycle state machine, and an append-only telemetry log. The
// queue does no file I/O; durability is the persistence layer's concern.
package queue

import (
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
)

// Telemetry event kinds.
const (
	KindEnqueued              = "enqueued"
	KindAdvancedToProcessed   = "advanced_to_processed"
	KindAdvancedToError       = "advanced_to_error"
	KindSkippedDuplicateID    = "skipped_duplicate_dispatch_id"
	KindSkippedDuplicateDedup = "skipped_duplicate_dedupe_key"
	KindValidationRejected    = "validation_rejected"
)

// Entry is one queue row, keyed by dispatch_id. Entries are never deleted.
type Entry struct {
	DispatchID string           `json:"dispatch_id"`
	DedupeKey  string           `json:"dedupe_key"`
	QueueState model.QueueState `json:"queue_state"`
	// Packet is nil only for entries restored from a state file that predates
	// packet retention.
	Packet              *model.DispatchPacket `json:"packet"`
	EventTimestamp      string                `json:"event_timestamp"`
	ProcessingTimestamp string                `json:"processing_timestamp"`
	StateReason         *string               `json:"state_reason"`
}

// TelemetryRecord is one append-only telemetry row.
type TelemetryRecord struct {
	RecordedAt string           `json:"recorded_at"`
	DispatchID string           `json:"dispatch_id"`
	Kind       string           `json:"kind"`
	QueueState model.QueueState `json:"queue_state"`
	Reason     *string          `json:"reason"`
	// EventTimestamp is nil when the packet was rejected before parsing.
	EventTimestamp      *string `json:"event_timestamp"`
	ProcessingTimestamp string  `json:"processing_timestamp"`
}

// Aggregates summarizes queue and telemetry state.
type Aggregates struct {
	DispatchCount             int `json:"dispatch_count"`
	DuplicateSuppressionCount int `json:"duplicate_suppression_count"`
	// RouteAccuracyDenominator counts entries in processed or enqueued state,
	// the population eligible for downstream accuracy measurement.
	RouteAccuracyDenominator int `json:"route_accuracy_denominator"`
	ProcessedCount           int `json:"processed_count"`
	EnqueuedCount            int `json:"enqueued_count"`
	ErrorCount               int `json:"error_count"`
	SkippedCount             int `json:"skipped_count"`
}

// allowedTransitions is the monotonic state machine: enqueued may advance to
// processed or error; processed may be superseded to skipped; error and
// skipped are terminal. Self-transitions are rejected before this table.
var allowedTransitions = map[model.QueueState][]model.QueueState{
	model.StateEnqueued:  {model.StateProcessed, model.StateError},
	model.StateProcessed: {model.StateSkipped},
	model.StateError:     {},
	model.StateSkipped:   {},
}

func transitionAllowed(from, to model.QueueState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Options configures a Queue.
type Options struct {
	// Mode every admitted packet must carry.
	Mode string
	// Clock is injectable for deterministic tests; defaults to time.Now.
	Clock func() time.Time
	// Config supplies the valid status set; defaults to config.Default().
	Config *config.Config
}

// Queue is the in-memory idempotent dispatch queue. Not safe for concurrent
// use; callers serialize access.
type Queue struct {
	mode      string
	clock     func() time.Time
	cfg       *config.Config
	entries   map[string]*Entry
	dedupe    map[string]string // dedupe_key → canonical dispatch_id
	telemetry []TelemetryRecord
}

// New creates an empty queue.
func New(opts Options) *Queue {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeTrial
	}
	return &Queue{
		mode:    opts.Mode,
		clock:   opts.Clock,
		cfg:     opts.Config,
		entries: make(map[string]*Entry),
		dedupe:  make(map[string]string),
	}
}

// EnqueueResult is the outcome of an admission attempt. When OK is false,
// QueueState tells the caller whether the packet was rejected outright
// ("error") or suppressed as a duplicate ("skipped").
type EnqueueResult struct {
	OK         bool
	Entry      *Entry
	QueueState model.QueueState
	Reason     string
}

// Enqueue submits a packet: validate, dedupe on dispatch_id, dedupe on the
// artifact-level key, then admit in enqueued state. Every outcome except a
// rejected advance writes exactly one telemetry record.
func (q *Queue) Enqueue(packet model.DispatchPacket) EnqueueResult {
	processing := model.Timestamp(q.clock())

	if v := ValidatePacket(packet, q.mode, q.cfg); !v.Valid {
		syntheticID := packet.DispatchID
		if syntheticID == "" {
			syntheticID = "REJECTED-" + processing
		}
		reason := v.Reason + ": " + v.Detail
		q.telemetry = append(q.telemetry, TelemetryRecord{
			RecordedAt:          processing,
			DispatchID:          syntheticID,
			Kind:                KindValidationRejected,
			QueueState:          model.StateError,
			Reason:              &reason,
			EventTimestamp:      nil,
			ProcessingTimestamp: processing,
		})
		return EnqueueResult{QueueState: model.StateError, Reason: reason}
	}

	eventTS := packet.CreatedAt
	if eventTS == "" {
		eventTS = processing
	}

	if existing, dup := q.entries[packet.DispatchID]; dup {
		reason := fmt.Sprintf("duplicate dispatch_id %q, already in state %q",
			packet.DispatchID, existing.QueueState)
		q.telemetry = append(q.telemetry, TelemetryRecord{
			RecordedAt:          processing,
			DispatchID:          packet.DispatchID,
			Kind:                KindSkippedDuplicateID,
			QueueState:          model.StateSkipped,
			Reason:              &reason,
			EventTimestamp:      &eventTS,
			ProcessingTimestamp: processing,
		})
		return EnqueueResult{QueueState: model.StateSkipped, Reason: reason}
	}

	dedupeKey := packet.DedupeKey()
	if canonicalID, dup := q.dedupe[dedupeKey]; dup {
		reason := fmt.Sprintf("duplicate dedupe key %q, canonical dispatch_id is %q",
			dedupeKey, canonicalID)
		q.telemetry = append(q.telemetry, TelemetryRecord{
			RecordedAt:          processing,
			DispatchID:          packet.DispatchID,
			Kind:                KindSkippedDuplicateDedup,
			QueueState:          model.StateSkipped,
			Reason:              &reason,
			EventTimestamp:      &eventTS,
			ProcessingTimestamp: processing,
		})
		return EnqueueResult{QueueState: model.StateSkipped, Reason: reason}
	}

	pkt := packet
	entry := &Entry{
		DispatchID:          packet.DispatchID,
		DedupeKey:           dedupeKey,
		QueueState:          model.StateEnqueued,
		Packet:              &pkt,
		EventTimestamp:      eventTS,
		ProcessingTimestamp: processing,
	}
	q.entries[packet.DispatchID] = entry
	q.dedupe[dedupeKey] = packet.DispatchID
	q.telemetry = append(q.telemetry, TelemetryRecord{
		RecordedAt:          processing,
		DispatchID:          packet.DispatchID,
		Kind:                KindEnqueued,
		QueueState:          model.StateEnqueued,
		EventTimestamp:      &eventTS,
		ProcessingTimestamp: processing,
	})
	return EnqueueResult{OK: true, Entry: entry, QueueState: model.StateEnqueued}
}

// AdvanceResult is the outcome of a transition attempt.
type AdvanceResult struct {
	OK     bool
	Entry  *Entry
	Reason string
}

// Advance moves an entry to next. Unknown ids, self-transitions, and
// transitions outside the monotonic table fail with a reason and leave both
// the entry and the telemetry log untouched.
func (q *Queue) Advance(dispatchID string, next model.QueueState, reason string) AdvanceResult {
	processing := model.Timestamp(q.clock())

	entry, ok := q.entries[dispatchID]
	if !ok {
		return AdvanceResult{Reason: fmt.Sprintf("dispatch_id %q not found in queue", dispatchID)}
	}
	if entry.QueueState == next {
		return AdvanceResult{Reason: fmt.Sprintf("dispatch_id %q is already in state %q", dispatchID, next)}
	}
	if !transitionAllowed(entry.QueueState, next) {
		return AdvanceResult{Reason: fmt.Sprintf(
			"invalid transition for dispatch_id %q: %q to %q is not permitted",
			dispatchID, entry.QueueState, next)}
	}

	entry.QueueState = next
	entry.ProcessingTimestamp = processing
	entry.StateReason = nil
	var reasonPtr *string
	if reason != "" {
		r := reason
		entry.StateReason = &r
		reasonPtr = &r
	}

	eventTS := entry.EventTimestamp
	q.telemetry = append(q.telemetry, TelemetryRecord{
		RecordedAt:          processing,
		DispatchID:          dispatchID,
		Kind:                advanceKind(next),
		QueueState:          next,
		Reason:              reasonPtr,
		EventTimestamp:      &eventTS,
		ProcessingTimestamp: processing,
	})
	return AdvanceResult{OK: true, Entry: entry}
}

func advanceKind(state model.QueueState) string {
	switch state {
	case model.StateProcessed:
		return KindAdvancedToProcessed
	case model.StateError:
		return KindAdvancedToError
	case model.StateSkipped:
		return KindSkippedDuplicateID
	default:
		return KindEnqueued
	}
}

// Entry returns the entry for dispatchID, or nil.
func (q *Queue) Entry(dispatchID string) *Entry {
	return q.entries[dispatchID]
}

// ListEntries returns all entries sorted by event_timestamp then dispatch_id.
func (q *Queue) ListEntries() []Entry {
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventTimestamp != out[j].EventTimestamp {
			return out[i].EventTimestamp < out[j].EventTimestamp
		}
		return out[i].DispatchID < out[j].DispatchID
	})
	return out
}

// Telemetry returns a snapshot copy of the append-only telemetry log.
func (q *Queue) Telemetry() []TelemetryRecord {
	out := make([]TelemetryRecord, len(q.telemetry))
	copy(out, q.telemetry)
	return out
}

// Aggregates computes counters from the telemetry log and current entries.
func (q *Queue) Aggregates() Aggregates {
	agg := Aggregates{DispatchCount: len(q.telemetry)}
	for _, rec := range q.telemetry {
		if rec.Kind == KindSkippedDuplicateID || rec.Kind == KindSkippedDuplicateDedup {
			agg.DuplicateSuppressionCount++
		}
	}
	for _, entry := range q.entries {
		switch entry.QueueState {
		case model.StateProcessed:
			agg.ProcessedCount++
		case model.StateEnqueued:
			agg.EnqueuedCount++
		case model.StateError:
			agg.ErrorCount++
		case model.StateSkipped:
			agg.SkippedCount++
		}
	}
	agg.RouteAccuracyDenominator = agg.ProcessedCount + agg.EnqueuedCount
	return agg
}

// Size returns the number of entries, all states included.
func (q *Queue) Size() int {
	return len(q.entries)
}

// Restore rehydrates a queue from previously persisted entries. Restored
// rows write no telemetry; they were logged when first admitted. Entries
// with a duplicate dispatch_id are rejected.
func (q *Queue) Restore(entries []Entry) error {
	for _, e := range entries {
		if e.DispatchID == "" {
			return fmt.Errorf("queue: restore: entry with empty dispatch_id")
		}
		if _, dup := q.entries[e.DispatchID]; dup {
			return fmt.Errorf("queue: restore: duplicate dispatch_id %q", e.DispatchID)
		}
		entry := e
		if entry.DedupeKey == "" && entry.Packet != nil {
			entry.DedupeKey = entry.Packet.DedupeKey()
		}
		q.entries[entry.DispatchID] = &entry
		if entry.DedupeKey != "" {
			if _, taken := q.dedupe[entry.DedupeKey]; !taken {
				q.dedupe[entry.DedupeKey] = entry.DispatchID
			}
		}
	}
	return nil
}
