package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/driftq/internal/config"
)

// Classification statuses reported per migrated entry.
const (
	StatusClassified = "classified"
	StatusInferred   = "inferred"
	StatusUnknown    = "unknown"
	StatusBlocked    = "blocked"
)

// EntryReport records the migration decision for a single artifact.
type EntryReport struct {
	ArtifactID           string `json:"artifact_id"`
	ClassificationStatus string `json:"classification_status"`
	Reason               string `json:"reason"`
	ArtifactClass        string `json:"artifact_class,omitempty"`
	TriggerPolicy        string `json:"trigger_policy,omitempty"`
	PropagationMode      string `json:"propagation_mode,omitempty"`
}

// Counts summarizes a migration run.
type Counts struct {
	InputTotal  int `json:"input_total"`
	OutputTotal int `json:"output_total"`
	Classified  int `json:"classified"`
	Inferred    int `json:"inferred"`
	Unknown     int `json:"unknown"`
	Blocked     int `json:"blocked"`
}

// Report is the full migration report.
type Report struct {
	GeneratedAt        string        `json:"generated_at"`
	Counts             Counts        `json:"counts"`
	Entries            []EntryReport `json:"entries"`
	UnknownArtifactIDs []string      `json:"unknown_artifact_ids"`
	BlockedArtifactIDs []string      `json:"blocked_artifact_ids"`
	FailOpenDetected   bool          `json:"fail_open_detected"`
}

// MigrationResult bundles the migrated registry with its report. OK is false
// when any unknown entry would have come out trigger-eligible (fail-open) or
// when the input was not a registry.v1 object at all.
type MigrationResult struct {
	OK       bool
	Registry V2Registry
	Report   Report
}

var (
	packArtifactPatterns = []*regexp.Regexp{
		regexp.MustCompile(`-(MARKET|SELL|PRODUCTS|LOGISTICS)-PACK$`),
		regexp.MustCompile(`-(MARKET|SELL|PRODUCTS|LOGISTICS)-AGGREGATE-PACK$`),
	}

	packPathPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/market-pack\.user\.md$`),
		regexp.MustCompile(`(?i)/sell-pack\.user\.md$`),
		regexp.MustCompile(`(?i)/(product-pack|products-aggregate-pack)\.user\.md$`),
		regexp.MustCompile(`(?i)/logistics-pack\.user\.md$`),
	}

	telemetryPathPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/ideas/(trial|live)/queue-state\.json$`),
		regexp.MustCompile(`(?i)/ideas/(trial|live)/dispatch-ledger\.jsonl$`),
		regexp.MustCompile(`(?i)/ideas/(trial|live)/telemetry\.jsonl$`),
		regexp.MustCompile(`(?i)/ideas/(trial|live)/standing-registry\.json$`),
	}

	reflectionPathPattern = regexp.MustCompile(`(?i)/results-review\.user\.md$`)
	derivedViewPattern    = regexp.MustCompile(`(?i)(\.html$|/(index|summary)\.user\.md$)`)
	ideasSubtreePattern   = regexp.MustCompile(`(?i)/ideas/`)
)

// primarySourceFiles maps well-known strategy file names to their artifact
// class. Anything here is a trigger-eligible source artifact.
var primarySourceFiles = map[string]string{
	"insight-log.user.md":         ClassSourceProcess,
	"customer-interviews.user.md": ClassSourceProcess,
	"competitor-scan.user.md":     ClassSourceProcess,
	"experiment-backlog.user.md":  ClassSourceProcess,
	"pricing-decisions.user.md":   ClassSourceProcess,
	"channel-policy.user.md":      ClassSourceProcess,
	"capacity-plan.user.md":       ClassSourceProcess,
	"risk-register.user.md":       ClassSourceProcess,
	"kpi-pack.user.md":            ClassSourceReference,
	"weekly-demand-plan.user.md":  ClassSourceProcess,
}

type inference struct {
	status          string
	artifactClass   string
	triggerPolicy   string
	propagationMode string
	reason          string
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func isAggregatePack(artifactID, path string) bool {
	return matchAny(packArtifactPatterns, artifactID) || matchAny(packPathPatterns, path)
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// classify applies the ordered first-match rules. Every branch resolves to a
// definite class/policy/mode; nothing falls through eligible by accident.
func classify(artifactID, path string) inference {
	switch {
	case matchAny(telemetryPathPatterns, path):
		return inference{StatusClassified, ClassSystemTelemetry, TriggerNever, PropagationProjectionAuto,
			"telemetry/runtime artifact detected"}
	case isAggregatePack(artifactID, path):
		return inference{StatusClassified, ClassProjectionSummary, TriggerManualOverrideOnly, PropagationProjectionAuto,
			"aggregate-pack cutover default"}
	case reflectionPathPattern.MatchString(path):
		return inference{StatusClassified, ClassReflection, TriggerNever, PropagationSourceTask,
			"reflection artifact detected"}
	default:
	}
	if class, ok := primarySourceFiles[baseName(path)]; ok {
		return inference{StatusClassified, class, TriggerEligible, PropagationSourceTask,
			"primary source-process candidate"}
	}
	switch {
	case derivedViewPattern.MatchString(path):
		return inference{StatusInferred, ClassProjectionSummary, TriggerManualOverrideOnly, PropagationProjectionAuto,
			"derived view/index heuristic"}
	case ideasSubtreePattern.MatchString(path):
		return inference{StatusInferred, ClassSystemTelemetry, TriggerNever, PropagationProjectionAuto,
			"ideas subsystem artifact fallback"}
	}
	return inference{StatusUnknown, ClassExecutionOutput, TriggerNever, PropagationProjectionAuto,
		"no classification rule matched; fail-closed default"}
}

// migrationNotes appends the migration decision to any prior notes. Re-running
// the migration over its own output leaves notes unchanged.
func migrationNotes(prior string, inf inference) string {
	cleaned := strings.TrimSpace(prior)
	suffix := fmt.Sprintf("migration_v1_v2: %s; %s", inf.status, inf.reason)
	if cleaned == "" {
		return suffix
	}
	if strings.Contains(cleaned, suffix) {
		return cleaned
	}
	return cleaned + " | " + suffix
}

func migrateEntry(entry V1Entry, cfg *config.Config) (*V2Entry, EntryReport) {
	artifactID := strings.ToUpper(strings.TrimSpace(entry.ArtifactID))
	artifactPath := strings.TrimSpace(strings.ReplaceAll(entry.Path, `\`, "/"))
	business := strings.ToUpper(strings.TrimSpace(entry.Business))
	domainRaw := strings.ToUpper(strings.TrimSpace(entry.Domain))

	if artifactID == "" || artifactPath == "" || business == "" || entry.Active == nil {
		id := artifactID
		if id == "" {
			id = "(missing-artifact-id)"
		}
		return nil, EntryReport{
			ArtifactID:           id,
			ClassificationStatus: StatusBlocked,
			Reason:               "missing required v1 fields (artifact_id/path/business/active)",
		}
	}

	if !cfg.ValidDomain(domainRaw) {
		return nil, EntryReport{
			ArtifactID:           artifactID,
			ClassificationStatus: StatusBlocked,
			Reason:               fmt.Sprintf("invalid domain %s for v2 contract", domainRaw),
		}
	}

	inf := classify(artifactID, artifactPath)
	migrated := &V2Entry{
		ArtifactID:      artifactID,
		Path:            artifactPath,
		Domain:          domainRaw,
		Business:        business,
		ArtifactClass:   inf.artifactClass,
		TriggerPolicy:   inf.triggerPolicy,
		PropagationMode: inf.propagationMode,
		DependsOn:       []string{},
		Produces:        []string{},
		LastKnownSHA:    entry.LastKnownSHA,
		RegisteredAt:    entry.RegisteredAt,
		Active:          *entry.Active,
		Notes:           migrationNotes(entry.Notes, inf),
	}
	return migrated, EntryReport{
		ArtifactID:           artifactID,
		ClassificationStatus: inf.status,
		Reason:               inf.reason,
		ArtifactClass:        inf.artifactClass,
		TriggerPolicy:        inf.triggerPolicy,
		PropagationMode:      inf.propagationMode,
	}
}

// Migrate converts raw registry.v1 JSON into a registry.v2 registry plus a
// full classification report. Domains are validated against the pipeline
// config's enumeration; nil cfg means the defaults. An input that is not a
// registry.v1 object produces an empty v2 registry and a single blocking
// report row instead of an error; the caller decides whether to write
// anything.
func Migrate(data []byte, now time.Time, cfg *config.Config) MigrationResult {
	ts := now.UTC().Format(time.RFC3339)
	if cfg == nil {
		cfg = config.Default()
	}

	var input struct {
		RegistryVersion    string            `json:"registry_version"`
		TriggerThreshold   *string           `json:"trigger_threshold"`
		T1SemanticSections []json.RawMessage `json:"t1_semantic_sections"`
		UpdatedAt          string            `json:"updated_at"`
		Artifacts          []V1Entry         `json:"artifacts"`
	}
	shapeOK := json.Unmarshal(data, &input) == nil &&
		input.RegistryVersion == VersionV1 &&
		input.TriggerThreshold != nil &&
		input.T1SemanticSections != nil &&
		input.Artifacts != nil

	if !shapeOK {
		return MigrationResult{
			OK: false,
			Registry: V2Registry{
				RegistryVersion:       VersionV2,
				TriggerThreshold:      "T1-conservative",
				T1SemanticSections:    []string{},
				UnknownArtifactPolicy: UnknownArtifactPolicy,
				UpdatedAt:             ts,
				Artifacts:             []V2Entry{},
			},
			Report: Report{
				GeneratedAt: ts,
				Counts:      Counts{Blocked: 1},
				Entries: []EntryReport{{
					ArtifactID:           "(registry)",
					ClassificationStatus: StatusBlocked,
					Reason:               "input is not a valid registry.v1 object",
				}},
				UnknownArtifactIDs: []string{},
				BlockedArtifactIDs: []string{"(registry)"},
				FailOpenDetected:   false,
			},
		}
	}

	var migrated []V2Entry
	var entries []EntryReport
	for _, v1 := range input.Artifacts {
		out, report := migrateEntry(v1, cfg)
		entries = append(entries, report)
		if out != nil {
			migrated = append(migrated, *out)
		}
	}

	sort.Slice(migrated, func(i, j int) bool {
		return migrated[i].ArtifactID < migrated[j].ArtifactID
	})

	counts := Counts{
		InputTotal:  len(input.Artifacts),
		OutputTotal: len(migrated),
	}
	unknownIDs := []string{}
	blockedIDs := []string{}
	failOpen := false
	for _, e := range entries {
		switch e.ClassificationStatus {
		case StatusClassified:
			counts.Classified++
		case StatusInferred:
			counts.Inferred++
		case StatusUnknown:
			counts.Unknown++
			unknownIDs = append(unknownIDs, e.ArtifactID)
			if e.TriggerPolicy == TriggerEligible {
				failOpen = true
			}
		case StatusBlocked:
			counts.Blocked++
			blockedIDs = append(blockedIDs, e.ArtifactID)
		}
	}
	sort.Strings(unknownIDs)
	sort.Strings(blockedIDs)

	sections := decodeStringArray(input.T1SemanticSections)
	updatedAt := input.UpdatedAt
	if updatedAt == "" {
		updatedAt = ts
	}

	return MigrationResult{
		OK: !failOpen,
		Registry: V2Registry{
			RegistryVersion:       VersionV2,
			TriggerThreshold:      *input.TriggerThreshold,
			T1SemanticSections:    sections,
			UnknownArtifactPolicy: UnknownArtifactPolicy,
			UpdatedAt:             updatedAt,
			Artifacts:             migrated,
		},
		Report: Report{
			GeneratedAt:        ts,
			Counts:             counts,
			Entries:            entries,
			UnknownArtifactIDs: unknownIDs,
			BlockedArtifactIDs: blockedIDs,
			FailOpenDetected:   failOpen,
		},
	}
}

func decodeStringArray(raw []json.RawMessage) []string {
	out := []string{}
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
