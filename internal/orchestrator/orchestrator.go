// Package orchestrator is the pure decision core of the pipeline: given a
// batch of artifact-delta events and a registry snapshot, classify each event
// as dispatch, suppress, or noop, and build dispatch packets for admitted
// events. No I/O, no wall clock; everything is injected.
package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/registry"
)

// Area anchors stamped on dispatched packets by delta class.
const (
	areaSemantic   = "channel-strategy"
	areaStructural = "market-intelligence"
)

// Params is one orchestrator invocation.
type Params struct {
	// Mode must be a configured run mode.
	Mode string
	// Events is the batch reported by the upstream change detector.
	Events []model.DeltaEvent
	// Registry gates dispatch on trigger policy. Nil skips the eligibility
	// gate entirely, which trial harnesses use to exercise classification
	// without seeding a registry.
	Registry *registry.V2Registry
	// Seen holds dedupe keys already dispatched in prior runs. Events whose
	// key is present are suppressed; admitted keys are added. Nil disables
	// cross-run suppression.
	Seen map[string]bool
	// Clock is the injected time source.
	Clock func() time.Time
	// Config supplies modes, semantic keywords, and routes. Nil means defaults.
	Config *config.Config
}

// Result is the orchestrator outcome. Dispatched + Suppressed + Noop always
// equals the number of events processed.
type Result struct {
	OK         bool
	Error      string
	Dispatched []model.DispatchPacket
	Suppressed int
	Noop       int
}

// Run classifies each event in order and builds packets for admitted events.
// Deterministic: identical inputs and clock produce identical results.
func Run(p Params) Result {
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if !cfg.ValidMode(p.Mode) {
		return Result{
			Error:      fmt.Sprintf("orchestrator: mode %q is not a configured run mode", p.Mode),
			Dispatched: []model.DispatchPacket{},
		}
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	now := clock()
	result := Result{OK: true, Dispatched: []model.DispatchPacket{}}
	seq := 0

	for _, event := range p.Events {
		// No delta to act on: first observation or an unusable event.
		if event.BeforeSHA == nil || *event.BeforeSHA == "" ||
			event.AfterSHA == "" || len(event.ChangedSections) == 0 {
			result.Noop++
			continue
		}

		if p.Registry != nil {
			entry := p.Registry.Lookup(event.ArtifactID)
			if entry == nil || entry.TriggerPolicy != registry.TriggerEligible || !entry.Active {
				result.Suppressed++
				continue
			}
		}

		key := event.DedupeKey()
		if p.Seen != nil {
			if p.Seen[key] {
				result.Suppressed++
				continue
			}
			p.Seen[key] = true
		}

		seq++
		result.Dispatched = append(result.Dispatched, buildPacket(event, p.Mode, cfg, now, seq))
	}
	return result
}

// buildPacket derives a dispatch packet from an admitted event. A semantic
// keyword match in any changed section routes to fact-find at higher priority
// and confidence; everything else routes to briefing.
func buildPacket(event model.DeltaEvent, mode string, cfg *config.Config, now time.Time, seq int) model.DispatchPacket {
	semantic := false
	for _, section := range event.ChangedSections {
		if cfg.SemanticMatch(section) {
			semantic = true
			break
		}
	}

	status := config.StatusBriefingReady
	area := areaStructural
	priority := "P3"
	confidence := 0.5
	scopeVerb := "Understand"
	if semantic {
		status = config.StatusFactFindReady
		area = areaSemantic
		priority = "P2"
		confidence = 0.75
		scopeVerb = "Investigate"
	}

	return model.DispatchPacket{
		SchemaVersion: model.SchemaVersion,
		DispatchID:    model.DispatchID(now, seq),
		Mode:          mode,
		Business:      event.Business,
		Trigger:       model.TriggerArtifactDelta,
		ArtifactID:    event.ArtifactID,
		BeforeSHA:     event.BeforeSHA,
		AfterSHA:      event.AfterSHA,

		AreaAnchor:                   area,
		LocationAnchors:              []string{event.Path},
		ProvisionalDeliverableFamily: cfg.DeliverableFamily,
		CurrentTruth:                 fmt.Sprintf("%s changed", event.ArtifactID),
		NextScopeNow:                 fmt.Sprintf("%s %s delta for %s", scopeVerb, area, strings.ToUpper(event.Business)),
		AdjacentLater:                []string{},

		RecommendedRoute: cfg.RouteFor(status),
		Status:           status,
		Priority:         priority,
		Confidence:       confidence,
		EvidenceRefs:     []string{event.Path},
		CreatedAt:        model.Timestamp(now),
		QueueState:       model.StateEnqueued,
	}
}
