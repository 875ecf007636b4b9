// Package route maps an admitted dispatch packet to a downstream skill
// invocation. Pure mapping: the adapter builds payloads, it never invokes
// anything; execution and operator confirmation belong to the caller.
package route

import (
	"fmt"
	"strings"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
)

// Machine-readable routing error codes.
const (
	CodeInvalidSchemaVersion     = "INVALID_SCHEMA_VERSION"
	CodeInvalidMode              = "INVALID_MODE"
	CodeReservedStatus           = "RESERVED_STATUS"
	CodeUnknownStatus            = "UNKNOWN_STATUS"
	CodeUnknownRoute             = "UNKNOWN_ROUTE"
	CodeRouteStatusMismatch      = "ROUTE_STATUS_MISMATCH"
	CodeMissingEvidenceRefs      = "MISSING_EVIDENCE_REFS"
	CodeMissingAreaAnchor        = "MISSING_AREA_ANCHOR"
	CodeMissingLocationAnchors   = "MISSING_LOCATION_ANCHORS"
	CodeMissingDeliverableFamily = "MISSING_DELIVERABLE_FAMILY"
)

// Payload describes what to pass to the downstream skill. Binding contracts:
// Skill equals the packet's recommended_route and DispatchID equals the
// packet's dispatch_id; downstream consumers rely on both.
type Payload struct {
	Skill                        string                `json:"skill"`
	DispatchID                   string                `json:"dispatch_id"`
	Business                     string                `json:"business"`
	AreaAnchor                   string                `json:"area_anchor"`
	LocationAnchors              []string              `json:"location_anchors"`
	ProvisionalDeliverableFamily string                `json:"provisional_deliverable_family,omitempty"`
	EvidenceRefs                 []string              `json:"evidence_refs"`
	DispatchCreatedAt            string                `json:"dispatch_created_at"`
	SourcePacket                 *model.DispatchPacket `json:"source_packet"`
	// Why approximates operator intent from the packet's current_truth.
	// Omitted when current_truth is empty; never fabricated.
	Why string `json:"why,omitempty"`
}

// Result is the routing outcome.
type Result struct {
	OK      bool
	Route   string
	Payload *Payload
	Code    string
	Error   string
	// DispatchID from the packet, for correlation even on failure.
	DispatchID string
}

func reject(dispatchID, code, format string, args ...any) Result {
	return Result{
		Code:       code,
		Error:      fmt.Sprintf("route: "+format, args...),
		DispatchID: dispatchID,
	}
}

// Dispatch validates a packet fail-closed and produces the invocation payload
// for its recommended route. Statuses and routes are compared
// case-insensitively after trimming.
func Dispatch(packet model.DispatchPacket, cfg *config.Config) Result {
	if cfg == nil {
		cfg = config.Default()
	}
	id := packet.DispatchID

	if packet.SchemaVersion != model.SchemaVersion {
		return reject(id, CodeInvalidSchemaVersion,
			"invalid schema_version %q, only %q packets are accepted", packet.SchemaVersion, model.SchemaVersion)
	}
	if !cfg.ValidMode(packet.Mode) {
		return reject(id, CodeInvalidMode,
			"packet mode %q is not permitted, configured modes only", packet.Mode)
	}

	status := strings.ToLower(strings.TrimSpace(packet.Status))
	routeName := strings.ToLower(strings.TrimSpace(packet.RecommendedRoute))

	if cfg.ReservedStatus(status) {
		return reject(id, CodeReservedStatus,
			"status %q is reserved and must never reach routing", status)
	}
	canonical := cfg.RouteFor(status)
	if canonical == "" {
		// Covers unknown statuses and valid-but-unroutable ones such as
		// logged_no_action.
		return reject(id, CodeUnknownStatus,
			"status %q is not a routable state", packet.Status)
	}
	if !cfg.ValidRoute(routeName) {
		return reject(id, CodeUnknownRoute,
			"unrecognised recommended_route %q", packet.RecommendedRoute)
	}
	if canonical != routeName {
		return reject(id, CodeRouteStatusMismatch,
			"status %q requires recommended_route %q, packet carries %q",
			packet.Status, canonical, packet.RecommendedRoute)
	}

	if len(packet.EvidenceRefs) == 0 {
		return reject(id, CodeMissingEvidenceRefs,
			"evidence_refs must have at least one item")
	}
	if strings.TrimSpace(packet.AreaAnchor) == "" {
		return reject(id, CodeMissingAreaAnchor,
			"area_anchor is required by every downstream skill")
	}

	factFind := status == config.StatusFactFindReady
	if factFind {
		if len(packet.LocationAnchors) == 0 {
			return reject(id, CodeMissingLocationAnchors,
				"location_anchors must have at least one item for the fact-find path")
		}
		if strings.TrimSpace(packet.ProvisionalDeliverableFamily) == "" {
			return reject(id, CodeMissingDeliverableFamily,
				"provisional_deliverable_family is required for the fact-find path")
		}
	}

	pkt := packet
	payload := &Payload{
		Skill:             packet.RecommendedRoute,
		DispatchID:        packet.DispatchID,
		Business:          packet.Business,
		AreaAnchor:        packet.AreaAnchor,
		LocationAnchors:   packet.LocationAnchors,
		EvidenceRefs:      packet.EvidenceRefs,
		DispatchCreatedAt: packet.CreatedAt,
		SourcePacket:      &pkt,
		Why:               strings.TrimSpace(packet.CurrentTruth),
	}
	if factFind {
		payload.ProvisionalDeliverableFamily = packet.ProvisionalDeliverableFamily
	} else if payload.LocationAnchors == nil {
		payload.LocationAnchors = []string{}
	}

	return Result{OK: true, Route: packet.RecommendedRoute, Payload: payload, DispatchID: id}
}
