package registry

import (
	"fmt"
	"strings"
)

// RenderReport renders the migration report as Markdown with a frontmatter
// header, suitable for checking into the docs tree next to the registry.
func RenderReport(result MigrationResult) string {
	status := "Draft"
	if !result.OK {
		status = "Blocked"
	}
	failOpen := "No"
	if result.Report.FailOpenDetected {
		failOpen = "Yes"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "Type: Registry-Migration-Report\n")
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Schema: registry.v1-to-v2\n")
	fmt.Fprintf(&b, "Generated: %s\n", result.Report.GeneratedAt)
	fmt.Fprintf(&b, "---\n\n")
	fmt.Fprintf(&b, "# Registry Migration Report\n\n")
	fmt.Fprintf(&b, "## Counts\n\n")
	fmt.Fprintf(&b, "- Input entries: %d\n", result.Report.Counts.InputTotal)
	fmt.Fprintf(&b, "- Output entries: %d\n", result.Report.Counts.OutputTotal)
	fmt.Fprintf(&b, "- Classified: %d\n", result.Report.Counts.Classified)
	fmt.Fprintf(&b, "- Inferred: %d\n", result.Report.Counts.Inferred)
	fmt.Fprintf(&b, "- Unknown: %d\n", result.Report.Counts.Unknown)
	fmt.Fprintf(&b, "- Blocked: %d\n", result.Report.Counts.Blocked)
	fmt.Fprintf(&b, "- Fail-open detected: %s\n\n", failOpen)
	fmt.Fprintf(&b, "## Entry Classification\n\n")
	fmt.Fprintf(&b, "| Artifact ID | Status | Class | Trigger | Propagation | Reason |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	for _, e := range result.Report.Entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			e.ArtifactID, e.ClassificationStatus,
			orDash(e.ArtifactClass), orDash(e.TriggerPolicy), orDash(e.PropagationMode), e.Reason)
	}

	b.WriteString("\n## Unknown Artifact IDs\n\n")
	writeIDList(&b, result.Report.UnknownArtifactIDs)
	b.WriteString("\n## Blocked Artifact IDs\n\n")
	writeIDList(&b, result.Report.BlockedArtifactIDs)

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeIDList(b *strings.Builder, ids []string) {
	if len(ids) == 0 {
		b.WriteString("- None\n")
		return
	}
	for _, id := range ids {
		fmt.Fprintf(b, "- %s\n", id)
	}
}
