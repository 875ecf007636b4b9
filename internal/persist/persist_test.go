package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/queue"
)

var persistTime = time.Date(2026, 2, 24, 18, 0, 0, 0, time.UTC)

func persistClock() time.Time { return persistTime }

func strptr(s string) *string { return &s }

func packet(id string) model.DispatchPacket {
	return model.DispatchPacket{
		SchemaVersion:   model.SchemaVersion,
		DispatchID:      id,
		Mode:            config.ModeTrial,
		Business:        "HBAG",
		Trigger:         model.TriggerArtifactDelta,
		ArtifactID:      "HBAG-" + id,
		BeforeSHA:       strptr("aaa"),
		AfterSHA:        "bbb",
		AreaAnchor:      "market-intelligence",
		LocationAnchors: []string{"docs/a.md"},
		CurrentTruth:    "HBAG-" + id + " changed",
		Status:          config.StatusBriefingReady,
		EvidenceRefs:    []string{"docs/a.md"},
		CreatedAt:       model.Timestamp(persistTime),
		QueueState:      model.StateEnqueued,
	}
}

func paths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "queue-state.json"), filepath.Join(dir, "telemetry.jsonl")
}

func TestOrchestratorResultFirstWrite(t *testing.T) {
	statePath, telePath := paths(t)

	res := OrchestratorResult(Options{
		QueueStatePath: statePath,
		TelemetryPath:  telePath,
		Mode:           config.ModeTrial,
		Business:       "HBAG",
		Dispatched:     []model.DispatchPacket{packet("D-1"), packet("D-2")},
		Clock:          persistClock,
	})
	if !res.OK {
		t.Fatalf("persist failed: %s", res.Err)
	}
	if res.NewEntriesWritten != 2 || res.TelemetryRecordsWritten != 2 {
		t.Errorf("written = %d/%d, want 2/2", res.NewEntriesWritten, res.TelemetryRecordsWritten)
	}

	state, err := LoadQueueState(statePath)
	if err != nil || state == nil {
		t.Fatalf("reload: state=%v err=%v", state, err)
	}
	if state.SchemaVersion != QueueStateVersion || state.Mode != config.ModeTrial || state.Business != "HBAG" {
		t.Errorf("header = %+v", state)
	}
	if len(state.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(state.Entries))
	}
	if state.Entries[0].QueueState != model.StateEnqueued || state.Entries[0].Packet == nil {
		t.Errorf("entry = %+v", state.Entries[0])
	}

	tele := ReadTelemetry(telePath)
	if len(tele) != 2 {
		t.Fatalf("telemetry rows = %d, want 2", len(tele))
	}
	if tele[0].Kind != queue.KindEnqueued || tele[0].Business != "HBAG" {
		t.Errorf("telemetry row = %+v", tele[0])
	}
}

func TestOrchestratorResultReplayWritesNothing(t *testing.T) {
	statePath, telePath := paths(t)
	opts := Options{
		QueueStatePath: statePath,
		TelemetryPath:  telePath,
		Mode:           config.ModeTrial,
		Business:       "HBAG",
		Dispatched:     []model.DispatchPacket{packet("D-1")},
		Clock:          persistClock,
	}

	if res := OrchestratorResult(opts); !res.OK {
		t.Fatalf("first pass failed: %s", res.Err)
	}
	before, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}

	replay := OrchestratorResult(opts)
	if !replay.OK {
		t.Fatalf("replay failed: %s", replay.Err)
	}
	if replay.NewEntriesWritten != 0 || replay.TelemetryRecordsWritten != 0 {
		t.Errorf("replay wrote %d entries, %d telemetry rows, want 0/0",
			replay.NewEntriesWritten, replay.TelemetryRecordsWritten)
	}

	after, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if string(before) != string(after) {
		t.Error("replay rewrote the queue-state file")
	}
	if tele := ReadTelemetry(telePath); len(tele) != 1 {
		t.Errorf("telemetry rows = %d, want 1", len(tele))
	}
}

func TestOrchestratorResultMergesNewPackets(t *testing.T) {
	statePath, telePath := paths(t)
	base := Options{
		QueueStatePath: statePath,
		TelemetryPath:  telePath,
		Mode:           config.ModeTrial,
		Business:       "HBAG",
		Clock:          persistClock,
	}

	first := base
	first.Dispatched = []model.DispatchPacket{packet("D-1")}
	OrchestratorResult(first)

	second := base
	second.Dispatched = []model.DispatchPacket{packet("D-1"), packet("D-2")}
	res := OrchestratorResult(second)
	if res.NewEntriesWritten != 1 {
		t.Errorf("new entries = %d, want 1", res.NewEntriesWritten)
	}

	state, _ := LoadQueueState(statePath)
	if len(state.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(state.Entries))
	}
}

func TestOrchestratorResultValidation(t *testing.T) {
	statePath, telePath := paths(t)

	if res := OrchestratorResult(Options{TelemetryPath: telePath, Mode: config.ModeTrial}); res.OK {
		t.Error("missing queue-state path accepted")
	}
	if res := OrchestratorResult(Options{QueueStatePath: statePath, TelemetryPath: telePath, Mode: "prod"}); res.OK {
		t.Error("invalid mode accepted")
	}
}

func TestOrchestratorResultCorruptStateFailsClosed(t *testing.T) {
	statePath, telePath := paths(t)
	if err := os.WriteFile(statePath, []byte("{corrupt"), 0o644); err != nil {
		t.Fatalf("seed corrupt state: %v", err)
	}

	res := OrchestratorResult(Options{
		QueueStatePath: statePath,
		TelemetryPath:  telePath,
		Mode:           config.ModeTrial,
		Business:       "HBAG",
		Dispatched:     []model.DispatchPacket{packet("D-1")},
		Clock:          persistClock,
	})
	if res.OK {
		t.Fatal("corrupt state accepted")
	}
	if _, err := os.Stat(telePath); !os.IsNotExist(err) {
		t.Error("telemetry written despite failed pass")
	}
}

func TestLoadQueueStateMissingFile(t *testing.T) {
	state, err := LoadQueueState(filepath.Join(t.TempDir(), "absent.json"))
	if state != nil || err != nil {
		t.Errorf("got %v, %v, want nil, nil", state, err)
	}
}

func TestLoadQueueStateWrongSchema(t *testing.T) {
	statePath, _ := paths(t)
	if err := os.WriteFile(statePath, []byte(`{"schema_version":"queue-state.v9","entries":[]}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := LoadQueueState(statePath); err == nil {
		t.Error("wrong schema_version accepted")
	}
}

func TestAppendTelemetryDedupes(t *testing.T) {
	_, telePath := paths(t)
	rec := TelemetryRecord{
		RecordedAt: model.Timestamp(persistTime),
		DispatchID: "D-1",
		Mode:       config.ModeTrial,
		Business:   "HBAG",
		QueueState: model.StateEnqueued,
		Kind:       queue.KindEnqueued,
	}

	n, err := AppendTelemetry(telePath, []TelemetryRecord{rec, rec})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 1 {
		t.Errorf("written = %d, want 1 (in-batch dedupe)", n)
	}

	n, err = AppendTelemetry(telePath, []TelemetryRecord{rec})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n != 0 {
		t.Errorf("written = %d, want 0 (on-disk dedupe)", n)
	}

	other := rec
	other.Kind = queue.KindAdvancedToProcessed
	if n, _ = AppendTelemetry(telePath, []TelemetryRecord{other}); n != 1 {
		t.Errorf("written = %d, want 1 (distinct kind)", n)
	}
	if rows := ReadTelemetry(telePath); len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestReadTelemetrySkipsDamagedLines(t *testing.T) {
	_, telePath := paths(t)
	content := `{"recorded_at":"2026-02-24T18:00:00.000Z","dispatch_id":"D-1","kind":"enqueued"}
not json
{"recorded_at":"2026-02-24T18:00:01.000Z","dispatch_id":"D-2","kind":"enqueued"}

`
	if err := os.WriteFile(telePath, []byte(content), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rows := ReadTelemetry(telePath)
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2 (damaged line skipped)", len(rows))
	}
}

func TestLockBlocksSecondWriter(t *testing.T) {
	statePath, _ := paths(t)

	lock, err := Acquire(statePath)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := Acquire(statePath); err == nil {
		t.Error("second acquire succeeded while lock held")
	} else if !strings.Contains(err.Error(), "locked by another writer") {
		t.Errorf("err = %v", err)
	}

	lock.Release()
	relock, err := Acquire(statePath)
	if err != nil {
		t.Errorf("acquire after release: %v", err)
	}
	relock.Release()
}

func TestLockToleratesMissingParentDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "not-yet", "queue-state.json")
	lock, err := Acquire(target)
	if err != nil {
		t.Fatalf("acquire with missing parent: %v", err)
	}
	lock.Release()
}

func TestRestoreQueueRoundTrip(t *testing.T) {
	statePath, telePath := paths(t)
	OrchestratorResult(Options{
		QueueStatePath: statePath,
		TelemetryPath:  telePath,
		Mode:           config.ModeTrial,
		Business:       "HBAG",
		Dispatched:     []model.DispatchPacket{packet("D-1")},
		Clock:          persistClock,
	})

	state, err := LoadQueueState(statePath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	q, err := RestoreQueue(state, queue.Options{Mode: config.ModeTrial, Clock: persistClock})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	entry := q.Entry("D-1")
	if entry == nil || entry.QueueState != model.StateEnqueued {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.EventTimestamp != packet("D-1").CreatedAt {
		t.Errorf("event timestamp = %q, want packet created_at", entry.EventTimestamp)
	}

	// Advancing a restored entry works against the same state machine.
	if adv := q.Advance("D-1", model.StateProcessed, ""); !adv.OK {
		t.Errorf("advance after restore failed: %s", adv.Reason)
	}
}

func TestRestoreQueueNilState(t *testing.T) {
	q, err := RestoreQueue(nil, queue.Options{Mode: config.ModeTrial})
	if err != nil || q.Size() != 0 {
		t.Errorf("got size=%d err=%v, want empty queue", q.Size(), err)
	}
}
