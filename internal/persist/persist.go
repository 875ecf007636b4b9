// Package persist is the durability layer: atomic write-through of queue
// entries to a queue-state JSON file and append-only telemetry to a JSONL
// file. All writes are idempotent; replaying an already-persisted result
// writes nothing. It operates on serialized state only and holds no reference
// to live queue objects.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/queue"
)

// QueueStateVersion tags the queue-state file schema.
const QueueStateVersion = "queue-state.v1"

// Entry is one persisted queue row.
type Entry struct {
	DispatchID   string                `json:"dispatch_id"`
	QueueState   model.QueueState      `json:"queue_state"`
	DispatchedAt string                `json:"dispatched_at"`
	StateReason  *string               `json:"state_reason,omitempty"`
	Packet       *model.DispatchPacket `json:"packet"`
}

// QueueStateFile is the on-disk queue-state snapshot.
type QueueStateFile struct {
	SchemaVersion string  `json:"schema_version"`
	Mode          string  `json:"mode"`
	Business      string  `json:"business"`
	GeneratedAt   string  `json:"generated_at"`
	Entries       []Entry `json:"entries"`
}

// TelemetryRecord is one persisted JSONL telemetry row.
type TelemetryRecord struct {
	RecordedAt string           `json:"recorded_at"`
	DispatchID string           `json:"dispatch_id"`
	Mode       string           `json:"mode"`
	Business   string           `json:"business"`
	QueueState model.QueueState `json:"queue_state"`
	Kind       string           `json:"kind"`
	Reason     *string          `json:"reason"`
}

func (r TelemetryRecord) dedupeKey() string {
	return r.DispatchID + "::" + r.RecordedAt + "::" + r.Kind
}

// atomicWrite writes content to a temp file next to target, then renames it
// into place. The temp file lives in the target's directory so the rename
// stays on one filesystem.
func atomicWrite(target string, content []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp.*")
	if err != nil {
		return fmt.Errorf("persist: create temp for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persist: write temp for %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: close temp for %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persist: rename into %s: %w", target, err)
	}
	return nil
}

// LoadQueueState reads the queue-state file. A missing file returns
// (nil, nil): first run, nothing persisted yet. An unreadable, unparsable, or
// wrong-version file returns an error.
func LoadQueueState(path string) (*QueueStateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: read queue state %s: %w", path, err)
	}
	var state QueueStateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("persist: queue state %s is not valid JSON: %w", path, err)
	}
	if state.SchemaVersion != QueueStateVersion {
		return nil, fmt.Errorf("persist: queue state %s has schema_version %q, want %q",
			path, state.SchemaVersion, QueueStateVersion)
	}
	return &state, nil
}

// WriteQueueState writes the snapshot atomically, creating parent directories
// as needed.
func WriteQueueState(path string, state *QueueStateFile) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal queue state: %w", err)
	}
	return atomicWrite(path, append(data, '\n'))
}

// ReadTelemetry loads existing JSONL telemetry rows, skipping blank and
// malformed lines so a damaged line never blocks readers or the append path.
func ReadTelemetry(path string) []TelemetryRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var records []TelemetryRecord
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec TelemetryRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.DispatchID != "" {
			records = append(records, rec)
		}
	}
	return records
}

// AppendTelemetry appends records to the JSONL file, deduplicating on
// dispatch_id + recorded_at + kind. Already-present records are skipped.
// Returns the number of records actually written.
func AppendTelemetry(path string, records []TelemetryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	existing := ReadTelemetry(path)
	seen := make(map[string]bool, len(existing))
	for _, rec := range existing {
		seen[rec.dedupeKey()] = true
	}

	var fresh []TelemetryRecord
	for _, rec := range records {
		if seen[rec.dedupeKey()] {
			continue
		}
		seen[rec.dedupeKey()] = true
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	var b strings.Builder
	for _, rec := range append(existing, fresh...) {
		line, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("persist: marshal telemetry record: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if err := atomicWrite(path, []byte(b.String())); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// Options configures one persistence pass over an orchestrator result.
type Options struct {
	QueueStatePath string
	TelemetryPath  string
	Mode           string
	Business       string
	Dispatched     []model.DispatchPacket
	Clock          func() time.Time
	Config         *config.Config
}

// Result reports what a persistence pass wrote.
type Result struct {
	OK                      bool
	NewEntriesWritten       int
	TelemetryRecordsWritten int
	Err                     string
}

func failed(format string, args ...any) Result {
	return Result{Err: fmt.Sprintf(format, args...)}
}

// OrchestratorResult persists the dispatched packets from one orchestrator
// run: load existing state, merge packets not yet present by dispatch_id,
// write the updated snapshot atomically, then append an enqueued telemetry
// record per newly admitted packet. A lockfile guards the read-modify-write
// against a second writer. Fail-closed: nothing is written on bad input or a
// corrupt existing state.
func OrchestratorResult(opts Options) Result {
	if opts.QueueStatePath == "" || opts.TelemetryPath == "" {
		return failed("persist: queue-state and telemetry paths are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if !cfg.ValidMode(opts.Mode) {
		return failed("persist: invalid mode %q", opts.Mode)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	generatedAt := model.Timestamp(clock())

	lock, err := Acquire(opts.QueueStatePath)
	if err != nil {
		return failed("persist: %v", err)
	}
	defer lock.Release()

	existing, err := LoadQueueState(opts.QueueStatePath)
	if err != nil {
		return failed("%v", err)
	}

	var entries []Entry
	existingIDs := make(map[string]bool)
	if existing != nil {
		entries = existing.Entries
		for _, e := range entries {
			existingIDs[e.DispatchID] = true
		}
	}

	var fresh []Entry
	for _, packet := range opts.Dispatched {
		if existingIDs[packet.DispatchID] {
			continue
		}
		existingIDs[packet.DispatchID] = true
		pkt := packet
		fresh = append(fresh, Entry{
			DispatchID:   packet.DispatchID,
			QueueState:   model.StateEnqueued,
			DispatchedAt: generatedAt,
			Packet:       &pkt,
		})
	}

	if len(fresh) == 0 && existing != nil {
		return Result{OK: true}
	}

	state := &QueueStateFile{
		SchemaVersion: QueueStateVersion,
		Mode:          opts.Mode,
		Business:      opts.Business,
		GeneratedAt:   generatedAt,
		Entries:       append(entries, fresh...),
	}
	if err := WriteQueueState(opts.QueueStatePath, state); err != nil {
		return failed("%v", err)
	}

	records := make([]TelemetryRecord, 0, len(fresh))
	for _, entry := range fresh {
		records = append(records, TelemetryRecord{
			RecordedAt: generatedAt,
			DispatchID: entry.DispatchID,
			Mode:       opts.Mode,
			Business:   opts.Business,
			QueueState: model.StateEnqueued,
			Kind:       queue.KindEnqueued,
		})
	}
	written, err := AppendTelemetry(opts.TelemetryPath, records)
	if err != nil {
		// Queue state is already durable; report the append failure without
		// unwinding the admission.
		return Result{OK: true, NewEntriesWritten: len(fresh), Err: fmt.Sprintf("%v", err)}
	}

	return Result{OK: true, NewEntriesWritten: len(fresh), TelemetryRecordsWritten: written}
}

// RestoreQueue rebuilds an in-memory queue from a persisted snapshot so the
// CLI and tool server can advance previously admitted entries.
func RestoreQueue(state *QueueStateFile, opts queue.Options) (*queue.Queue, error) {
	q := queue.New(opts)
	if state == nil {
		return q, nil
	}
	entries := make([]queue.Entry, 0, len(state.Entries))
	for _, e := range state.Entries {
		eventTS := e.DispatchedAt
		dedupe := ""
		if e.Packet != nil {
			if e.Packet.CreatedAt != "" {
				eventTS = e.Packet.CreatedAt
			}
			dedupe = e.Packet.DedupeKey()
		}
		entries = append(entries, queue.Entry{
			DispatchID:          e.DispatchID,
			DedupeKey:           dedupe,
			QueueState:          e.QueueState,
			Packet:              e.Packet,
			EventTimestamp:      eventTS,
			ProcessingTimestamp: e.DispatchedAt,
			StateReason:         e.StateReason,
		})
	}
	if err := q.Restore(entries); err != nil {
		return nil, err
	}
	return q, nil
}
