package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/driftq/internal/hook"
	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/persist"
	"github.com/ppiankov/driftq/internal/queue"
)

// --- Input/Output types ---

// EventInput is one artifact-delta event supplied by the caller.
type EventInput struct {
	ArtifactID      string   `json:"artifact_id" jsonschema:"artifact identifier"`
	Business        string   `json:"business" jsonschema:"business code"`
	BeforeSHA       *string  `json:"before_sha" jsonschema:"content hash before the change, null on first observation"`
	AfterSHA        string   `json:"after_sha" jsonschema:"content hash after the change"`
	Path            string   `json:"path" jsonschema:"artifact file path"`
	Domain          string   `json:"domain" jsonschema:"registry domain"`
	ChangedSections []string `json:"changed_sections" jsonschema:"changed section names"`
}

func (e EventInput) event() model.DeltaEvent {
	return model.DeltaEvent{
		ArtifactID:      e.ArtifactID,
		Business:        e.Business,
		BeforeSHA:       e.BeforeSHA,
		AfterSHA:        e.AfterSHA,
		Path:            e.Path,
		Domain:          e.Domain,
		ChangedSections: e.ChangedSections,
	}
}

// DispatchSummary is a compact view of an admitted packet.
type DispatchSummary struct {
	DispatchID string `json:"dispatch_id"`
	ArtifactID string `json:"artifact_id"`
	Status     string `json:"status"`
	Route      string `json:"recommended_route"`
	Priority   string `json:"priority"`
}

// CheckInput defines parameters for the driftq_check tool.
type CheckInput struct {
	Business string       `json:"business,omitempty" jsonschema:"business code, defaults to the server's business"`
	Events   []EventInput `json:"events" jsonschema:"artifact-delta events to classify"`
}

// CheckOutput reports the dry-run classification.
type CheckOutput struct {
	OK         bool              `json:"ok"`
	Error      string            `json:"error,omitempty"`
	Dispatched []DispatchSummary `json:"dispatched"`
	Suppressed int               `json:"suppressed"`
	Noop       int               `json:"noop"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// EnqueueInput defines parameters for the driftq_enqueue tool.
type EnqueueInput struct {
	Business string       `json:"business,omitempty" jsonschema:"business code, defaults to the server's business"`
	Events   []EventInput `json:"events" jsonschema:"artifact-delta events to classify and persist"`
}

// EnqueueOutput reports what was admitted and persisted.
type EnqueueOutput struct {
	OK                      bool              `json:"ok"`
	Error                   string            `json:"error,omitempty"`
	Dispatched              []DispatchSummary `json:"dispatched"`
	Suppressed              int               `json:"suppressed"`
	Noop                    int               `json:"noop"`
	NewEntriesWritten       int               `json:"new_entries_written"`
	TelemetryRecordsWritten int               `json:"telemetry_records_written"`
}

// AdvanceInput defines parameters for the driftq_advance tool.
type AdvanceInput struct {
	DispatchID string `json:"dispatch_id" jsonschema:"entry to advance"`
	To         string `json:"to" jsonschema:"target state: processed, error, or skipped"`
	Reason     string `json:"reason,omitempty" jsonschema:"optional reason recorded on the entry"`
}

// AdvanceOutput reports the transition result.
type AdvanceOutput struct {
	OK         bool   `json:"ok"`
	DispatchID string `json:"dispatch_id"`
	QueueState string `json:"queue_state,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// StatusInput is empty.
type StatusInput struct{}

// StatusOutput carries queue aggregates.
type StatusOutput struct {
	DispatchCount             int `json:"dispatch_count"`
	DuplicateSuppressionCount int `json:"duplicate_suppression_count"`
	RouteAccuracyDenominator  int `json:"route_accuracy_denominator"`
	ProcessedCount            int `json:"processed_count"`
	EnqueuedCount             int `json:"enqueued_count"`
	ErrorCount                int `json:"error_count"`
	SkippedCount              int `json:"skipped_count"`
}

// ListInput is empty.
type ListInput struct{}

// ListEntry is one queue row in a list response.
type ListEntry struct {
	DispatchID     string `json:"dispatch_id"`
	QueueState     string `json:"queue_state"`
	ArtifactID     string `json:"artifact_id,omitempty"`
	EventTimestamp string `json:"event_timestamp"`
	StateReason    string `json:"state_reason,omitempty"`
}

// ListOutput lists queue entries.
type ListOutput struct {
	Entries []ListEntry `json:"entries"`
}

// --- Handlers ---

func summaries(packets []model.DispatchPacket) []DispatchSummary {
	out := make([]DispatchSummary, 0, len(packets))
	for _, p := range packets {
		out = append(out, DispatchSummary{
			DispatchID: p.DispatchID,
			ArtifactID: p.ArtifactID,
			Status:     p.Status,
			Route:      p.RecommendedRoute,
			Priority:   p.Priority,
		})
	}
	return out
}

func (s *Server) runHook(business string, events []EventInput) hook.Result {
	if business == "" {
		business = s.cfg.Business
	}
	deltas := make([]model.DeltaEvent, 0, len(events))
	for _, e := range events {
		deltas = append(deltas, e.event())
	}
	return hook.Run(hook.Params{
		Business:       business,
		RegistryPath:   s.cfg.RegistryPath,
		QueueStatePath: s.cfg.QueueStatePath,
		TelemetryPath:  s.cfg.TelemetryPath,
		Events:         deltas,
		Mode:           s.cfg.Mode,
		Clock:          s.clock,
		Config:         s.pipeline,
	})
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	res := s.runHook(input.Business, input.Events)
	out := CheckOutput{
		OK:         res.OK,
		Error:      res.Error,
		Dispatched: summaries(res.Dispatched),
		Suppressed: res.Suppressed,
		Noop:       res.Noop,
		Warnings:   res.Warnings,
	}
	return &mcpsdk.CallToolResult{IsError: !res.OK}, out, nil
}

func (s *Server) handleEnqueue(ctx context.Context, req *mcpsdk.CallToolRequest, input EnqueueInput) (*mcpsdk.CallToolResult, EnqueueOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	business := input.Business
	if business == "" {
		business = s.cfg.Business
	}
	res := s.runHook(business, input.Events)
	out := EnqueueOutput{
		OK:         res.OK,
		Error:      res.Error,
		Dispatched: summaries(res.Dispatched),
		Suppressed: res.Suppressed,
		Noop:       res.Noop,
	}
	if !res.OK {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	pres := persist.OrchestratorResult(persist.Options{
		QueueStatePath: s.cfg.QueueStatePath,
		TelemetryPath:  s.cfg.TelemetryPath,
		Mode:           s.cfg.Mode,
		Business:       business,
		Dispatched:     res.Dispatched,
		Clock:          s.clock,
		Config:         s.pipeline,
	})
	out.NewEntriesWritten = pres.NewEntriesWritten
	out.TelemetryRecordsWritten = pres.TelemetryRecordsWritten
	if !pres.OK {
		out.OK = false
		out.Error = pres.Err
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleAdvance(ctx context.Context, req *mcpsdk.CallToolRequest, input AdvanceInput) (*mcpsdk.CallToolResult, AdvanceOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := AdvanceOutput{DispatchID: input.DispatchID}

	lock, err := persist.Acquire(s.cfg.QueueStatePath)
	if err != nil {
		out.Reason = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	defer lock.Release()

	state, err := persist.LoadQueueState(s.cfg.QueueStatePath)
	if err != nil {
		out.Reason = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	if state == nil {
		out.Reason = fmt.Sprintf("no queue state at %s", s.cfg.QueueStatePath)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	q, err := persist.RestoreQueue(state, queue.Options{
		Mode:   state.Mode,
		Clock:  s.clock,
		Config: s.pipeline,
	})
	if err != nil {
		out.Reason = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	adv := q.Advance(input.DispatchID, model.QueueState(input.To), input.Reason)
	if !adv.OK {
		out.Reason = adv.Reason
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	now := model.Timestamp(s.clock())
	for i := range state.Entries {
		if state.Entries[i].DispatchID == input.DispatchID {
			state.Entries[i].QueueState = adv.Entry.QueueState
			state.Entries[i].StateReason = adv.Entry.StateReason
		}
	}
	state.GeneratedAt = now
	if err := persist.WriteQueueState(s.cfg.QueueStatePath, state); err != nil {
		out.Reason = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	var reasonPtr *string
	if input.Reason != "" {
		r := input.Reason
		reasonPtr = &r
	}
	tele := q.Telemetry()
	kind := queue.KindAdvancedToProcessed
	if len(tele) > 0 {
		kind = tele[len(tele)-1].Kind
	}
	if _, err := persist.AppendTelemetry(s.cfg.TelemetryPath, []persist.TelemetryRecord{{
		RecordedAt: now,
		DispatchID: input.DispatchID,
		Mode:       state.Mode,
		Business:   state.Business,
		QueueState: adv.Entry.QueueState,
		Kind:       kind,
		Reason:     reasonPtr,
	}}); err != nil {
		out.Reason = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	out.OK = true
	out.QueueState = string(adv.Entry.QueueState)
	return nil, out, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := persist.LoadQueueState(s.cfg.QueueStatePath)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, StatusOutput{}, err
	}

	out := StatusOutput{}
	if state != nil {
		for _, e := range state.Entries {
			switch e.QueueState {
			case model.StateProcessed:
				out.ProcessedCount++
			case model.StateEnqueued:
				out.EnqueuedCount++
			case model.StateError:
				out.ErrorCount++
			case model.StateSkipped:
				out.SkippedCount++
			}
		}
	}
	out.RouteAccuracyDenominator = out.ProcessedCount + out.EnqueuedCount

	for _, rec := range persist.ReadTelemetry(s.cfg.TelemetryPath) {
		out.DispatchCount++
		if rec.Kind == queue.KindSkippedDuplicateID || rec.Kind == queue.KindSkippedDuplicateDedup {
			out.DuplicateSuppressionCount++
		}
	}
	return nil, out, nil
}

func (s *Server) handleList(ctx context.Context, req *mcpsdk.CallToolRequest, input ListInput) (*mcpsdk.CallToolResult, ListOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := persist.LoadQueueState(s.cfg.QueueStatePath)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ListOutput{}, err
	}
	out := ListOutput{Entries: []ListEntry{}}
	if state == nil {
		return nil, out, nil
	}

	q, err := persist.RestoreQueue(state, queue.Options{Mode: state.Mode, Clock: s.clock, Config: s.pipeline})
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ListOutput{}, err
	}
	for _, e := range q.ListEntries() {
		row := ListEntry{
			DispatchID:     e.DispatchID,
			QueueState:     string(e.QueueState),
			EventTimestamp: e.EventTimestamp,
		}
		if e.Packet != nil {
			row.ArtifactID = e.Packet.ArtifactID
		}
		if e.StateReason != nil {
			row.StateReason = *e.StateReason
		}
		out.Entries = append(out.Entries, row)
	}
	return nil, out, nil
}
