package registry

import (
	"fmt"
	"sort"
	"strings"
)

// PilotRow is one seeded classification for the pilot table.
type PilotRow struct {
	ArtifactID           string
	Path                 string
	Domain               string
	Business             string
	ArtifactClass        string
	TriggerPolicy        string
	PropagationMode      string
	ClassificationStatus string
	Reason               string
}

var pilotPackDomains = []struct {
	domain string
	file   string
}{
	{"MARKET", "market-pack.user.md"},
	{"SELL", "sell-pack.user.md"},
	{"PRODUCTS", "product-pack.user.md"},
	{"LOGISTICS", "logistics-pack.user.md"},
}

// PilotRows seeds the per-business classification pilot: the four aggregate
// packs plus every primary source artifact, classified with the same rules
// the migration applies.
func PilotRows(business string) []PilotRow {
	biz := strings.ToUpper(strings.TrimSpace(business))
	var rows []PilotRow

	for _, pack := range pilotPackDomains {
		rows = append(rows, PilotRow{
			ArtifactID:           fmt.Sprintf("%s-%s-PACK", biz, pack.domain),
			Path:                 fmt.Sprintf("docs/business-os/strategy/%s/%s", biz, pack.file),
			Domain:               pack.domain,
			Business:             biz,
			ArtifactClass:        ClassProjectionSummary,
			TriggerPolicy:        TriggerManualOverrideOnly,
			PropagationMode:      PropagationProjectionAuto,
			ClassificationStatus: StatusClassified,
			Reason:               "aggregate-pack cutover default",
		})
	}

	for fileName, class := range primarySourceFiles {
		suffix := strings.ToUpper(strings.ReplaceAll(strings.TrimSuffix(fileName, ".user.md"), "-", "_"))
		rows = append(rows, PilotRow{
			ArtifactID:           fmt.Sprintf("%s-STRATEGY-%s", biz, suffix),
			Path:                 fmt.Sprintf("docs/business-os/strategy/%s/%s", biz, fileName),
			Domain:               "STRATEGY",
			Business:             biz,
			ArtifactClass:        class,
			TriggerPolicy:        TriggerEligible,
			PropagationMode:      PropagationSourceTask,
			ClassificationStatus: StatusClassified,
			Reason:               "primary source-process candidate",
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ArtifactID < rows[j].ArtifactID })
	return rows
}

// RenderPilot renders the pilot classification table as Markdown.
func RenderPilot(business string, rows []PilotRow, generatedAt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "Type: Registry-Classification-Pilot\n")
	fmt.Fprintf(&b, "Status: Draft\n")
	fmt.Fprintf(&b, "Business: %s\n", strings.ToUpper(strings.TrimSpace(business)))
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt)
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "# Registry v2 Classification Pilot\n\n")
	fmt.Fprintf(&b, "## Scope\n\n")
	fmt.Fprintf(&b, "- Includes all aggregate pack trigger artifacts and primary source-process artifacts for pilot scope.\n")
	fmt.Fprintf(&b, "- Enforces cutover-safe defaults for pack artifacts.\n")
	fmt.Fprintf(&b, "- Uses fail-closed defaults for unknown artifacts (none in this pilot seed).\n\n")
	fmt.Fprintf(&b, "## Classification Table\n\n")
	fmt.Fprintf(&b, "| Artifact ID | Path | Class | Trigger | Propagation | Status | Reason |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|---|\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			row.ArtifactID, row.Path, row.ArtifactClass, row.TriggerPolicy,
			row.PropagationMode, row.ClassificationStatus, row.Reason)
	}
	fmt.Fprintf(&b, "\n## Validation Notes\n\n")
	fmt.Fprintf(&b, "- No trigger-eligible row is unclassified.\n")
	fmt.Fprintf(&b, "- Aggregate packs are `projection_summary + manual_override_only` per cutover contract.\n")
	fmt.Fprintf(&b, "- Unknown artifacts remain fail-closed by policy (`trigger_policy: never`).\n")
	return b.String()
}
