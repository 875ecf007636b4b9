package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/registry"
)

var runTime = time.Date(2026, 2, 24, 9, 15, 30, 0, time.UTC)

func runClock() time.Time { return runTime }

func strptr(s string) *string { return &s }

func event(artifactID string, sections ...string) model.DeltaEvent {
	return model.DeltaEvent{
		ArtifactID:      artifactID,
		Business:        "hbag",
		BeforeSHA:       strptr("sha-before"),
		AfterSHA:        "sha-after",
		Path:            "docs/business-os/strategy/HBAG/artifact.user.md",
		Domain:          "source_process",
		ChangedSections: sections,
	}
}

func eligibleRegistry(ids ...string) *registry.V2Registry {
	reg := &registry.V2Registry{RegistryVersion: registry.VersionV2}
	for _, id := range ids {
		reg.Artifacts = append(reg.Artifacts, registry.V2Entry{
			ArtifactID:    id,
			TriggerPolicy: registry.TriggerEligible,
			Active:        true,
		})
	}
	return reg
}

func TestRunRejectsUnknownMode(t *testing.T) {
	res := Run(Params{Mode: "production", Clock: runClock})
	if res.OK {
		t.Fatal("unknown mode accepted")
	}
	if res.Error == "" {
		t.Error("no error message for unknown mode")
	}
}

func TestSemanticDeltaDispatch(t *testing.T) {
	res := Run(Params{
		Mode:   config.ModeTrial,
		Events: []model.DeltaEvent{event("HBAG-SELL-PACK", "Overview", "Pricing")},
		Clock:  runClock,
	})
	if !res.OK || len(res.Dispatched) != 1 {
		t.Fatalf("result = %+v, want one dispatch", res)
	}

	pkt := res.Dispatched[0]
	if pkt.Status != config.StatusFactFindReady {
		t.Errorf("status = %q, want fact_find_ready", pkt.Status)
	}
	if pkt.AreaAnchor != "channel-strategy" {
		t.Errorf("area_anchor = %q", pkt.AreaAnchor)
	}
	if pkt.Priority != "P2" || pkt.Confidence != 0.75 {
		t.Errorf("priority/confidence = %s/%v, want P2/0.75", pkt.Priority, pkt.Confidence)
	}
	if pkt.RecommendedRoute != "fact-find" {
		t.Errorf("recommended_route = %q", pkt.RecommendedRoute)
	}
	if pkt.NextScopeNow != "Investigate channel-strategy delta for HBAG" {
		t.Errorf("next_scope_now = %q", pkt.NextScopeNow)
	}
	if pkt.CurrentTruth != "HBAG-SELL-PACK changed" {
		t.Errorf("current_truth = %q", pkt.CurrentTruth)
	}
	if len(pkt.LocationAnchors) != 1 || pkt.LocationAnchors[0] != pkt.EvidenceRefs[0] {
		t.Errorf("anchors = %v, evidence = %v, want both set to the event path",
			pkt.LocationAnchors, pkt.EvidenceRefs)
	}
	if pkt.AdjacentLater == nil || len(pkt.AdjacentLater) != 0 {
		t.Errorf("adjacent_later = %v, want empty non-nil slice", pkt.AdjacentLater)
	}
	if pkt.QueueState != model.StateEnqueued {
		t.Errorf("queue_state = %q", pkt.QueueState)
	}
}

func TestStructuralDeltaDispatch(t *testing.T) {
	res := Run(Params{
		Mode:   config.ModeTrial,
		Events: []model.DeltaEvent{event("HBAG-SELL-PACK", "Appendix", "Revision History")},
		Clock:  runClock,
	})
	if len(res.Dispatched) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(res.Dispatched))
	}

	pkt := res.Dispatched[0]
	if pkt.Status != config.StatusBriefingReady {
		t.Errorf("status = %q, want briefing_ready", pkt.Status)
	}
	if pkt.AreaAnchor != "market-intelligence" {
		t.Errorf("area_anchor = %q", pkt.AreaAnchor)
	}
	if pkt.Priority != "P3" || pkt.Confidence != 0.5 {
		t.Errorf("priority/confidence = %s/%v, want P3/0.5", pkt.Priority, pkt.Confidence)
	}
	if pkt.RecommendedRoute != "briefing" {
		t.Errorf("recommended_route = %q", pkt.RecommendedRoute)
	}
	if !strings.HasPrefix(pkt.NextScopeNow, "Understand ") {
		t.Errorf("next_scope_now = %q, want Understand prefix", pkt.NextScopeNow)
	}
}

func TestSemanticMatchIsCaseInsensitiveSubstring(t *testing.T) {
	res := Run(Params{
		Mode:   config.ModeTrial,
		Events: []model.DeltaEvent{event("A-1", "Refined Target Customer Profile")},
		Clock:  runClock,
	})
	if len(res.Dispatched) != 1 || res.Dispatched[0].Status != config.StatusFactFindReady {
		t.Fatalf("result = %+v, want semantic fact_find_ready dispatch", res)
	}
}

func TestNoopEvents(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.DeltaEvent)
	}{
		{"nil before_sha", func(e *model.DeltaEvent) { e.BeforeSHA = nil }},
		{"empty before_sha", func(e *model.DeltaEvent) { e.BeforeSHA = strptr("") }},
		{"empty after_sha", func(e *model.DeltaEvent) { e.AfterSHA = "" }},
		{"no changed sections", func(e *model.DeltaEvent) { e.ChangedSections = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := event("A-1", "Overview")
			tc.mutate(&ev)
			res := Run(Params{Mode: config.ModeTrial, Events: []model.DeltaEvent{ev}, Clock: runClock})
			if res.Noop != 1 || len(res.Dispatched) != 0 || res.Suppressed != 0 {
				t.Errorf("result = %+v, want single noop", res)
			}
		})
	}
}

func TestRegistryGate(t *testing.T) {
	reg := eligibleRegistry("A-1")
	reg.Artifacts = append(reg.Artifacts,
		registry.V2Entry{ArtifactID: "A-2", TriggerPolicy: registry.TriggerManualOverrideOnly, Active: true},
		registry.V2Entry{ArtifactID: "A-3", TriggerPolicy: registry.TriggerEligible, Active: false},
	)

	res := Run(Params{
		Mode: config.ModeTrial,
		Events: []model.DeltaEvent{
			event("A-1", "Overview"),
			event("A-2", "Overview"),
			event("A-3", "Overview"),
			event("A-4", "Overview"), // not in registry
		},
		Registry: reg,
		Clock:    runClock,
	})
	if len(res.Dispatched) != 1 || res.Dispatched[0].ArtifactID != "A-1" {
		t.Fatalf("dispatched = %+v, want only A-1", res.Dispatched)
	}
	if res.Suppressed != 3 {
		t.Errorf("suppressed = %d, want 3", res.Suppressed)
	}
}

func TestNilRegistrySkipsGate(t *testing.T) {
	res := Run(Params{
		Mode:   config.ModeTrial,
		Events: []model.DeltaEvent{event("UNREGISTERED", "Overview")},
		Clock:  runClock,
	})
	if len(res.Dispatched) != 1 {
		t.Errorf("dispatched = %d, want 1 (nil registry must not suppress)", len(res.Dispatched))
	}
}

func TestSeenSuppression(t *testing.T) {
	seen := map[string]bool{}
	params := Params{
		Mode:   config.ModeTrial,
		Events: []model.DeltaEvent{event("A-1", "Overview")},
		Seen:   seen,
		Clock:  runClock,
	}

	first := Run(params)
	if len(first.Dispatched) != 1 {
		t.Fatalf("first run dispatched = %d, want 1", len(first.Dispatched))
	}
	if !seen[event("A-1", "Overview").DedupeKey()] {
		t.Error("dedupe key not recorded in seen set")
	}

	second := Run(params)
	if len(second.Dispatched) != 0 || second.Suppressed != 1 {
		t.Errorf("second run = %+v, want suppression", second)
	}
}

func TestAccountingInvariant(t *testing.T) {
	noop := event("A-1", "Overview")
	noop.AfterSHA = ""
	res := Run(Params{
		Mode: config.ModeTrial,
		Events: []model.DeltaEvent{
			event("A-1", "Pricing"),
			noop,
			event("A-2", "Overview"),
		},
		Registry: eligibleRegistry("A-1"), // A-2 suppressed
		Clock:    runClock,
	})
	if got := len(res.Dispatched) + res.Suppressed + res.Noop; got != 3 {
		t.Errorf("dispatched+suppressed+noop = %d, want 3", got)
	}
}

func TestDeterministicDispatchIDs(t *testing.T) {
	events := []model.DeltaEvent{event("A-1", "Overview"), event("A-2", "Overview")}

	first := Run(Params{Mode: config.ModeTrial, Events: events, Clock: runClock})
	second := Run(Params{Mode: config.ModeTrial, Events: events, Clock: runClock})

	if len(first.Dispatched) != 2 {
		t.Fatalf("dispatched = %d, want 2", len(first.Dispatched))
	}
	for i := range first.Dispatched {
		if first.Dispatched[i].DispatchID != second.Dispatched[i].DispatchID {
			t.Errorf("replay id mismatch: %q vs %q",
				first.Dispatched[i].DispatchID, second.Dispatched[i].DispatchID)
		}
	}
	if first.Dispatched[0].DispatchID != "DSP-20260224091530-0001" {
		t.Errorf("dispatch_id = %q, want DSP-20260224091530-0001", first.Dispatched[0].DispatchID)
	}
	if first.Dispatched[1].DispatchID != "DSP-20260224091530-0002" {
		t.Errorf("dispatch_id = %q, want DSP-20260224091530-0002", first.Dispatched[1].DispatchID)
	}
	if first.Dispatched[0].CreatedAt != "2026-02-24T09:15:30.000Z" {
		t.Errorf("created_at = %q", first.Dispatched[0].CreatedAt)
	}
}
