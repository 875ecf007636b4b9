package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if !cfg.ValidMode(ModeTrial) || !cfg.ValidMode(ModeLive) {
		t.Error("default modes missing trial/live")
	}
	if cfg.ValidMode("production") {
		t.Error("unknown mode accepted")
	}
	for _, status := range []string{StatusFactFindReady, StatusBriefingReady, StatusAutoExecuted, StatusLoggedNoAction} {
		if !cfg.ValidStatus(status) {
			t.Errorf("status %q not valid by default", status)
		}
	}
	if !cfg.ReservedStatus(StatusAutoExecuted) {
		t.Error("auto_executed not reserved")
	}
	if cfg.ReservedStatus(StatusFactFindReady) {
		t.Error("fact_find_ready reserved")
	}
	if got := cfg.RouteFor(StatusFactFindReady); got != "fact-find" {
		t.Errorf("route for fact_find_ready = %q", got)
	}
	if got := cfg.RouteFor(StatusLoggedNoAction); got != "" {
		t.Errorf("route for logged_no_action = %q, want none", got)
	}
	if !cfg.ValidRoute("briefing") || cfg.ValidRoute("teleport") {
		t.Error("route validity wrong")
	}
	if !cfg.ValidDomain("SELL") || cfg.ValidDomain("FINANCE") {
		t.Error("domain validity wrong")
	}
	if cfg.DeliverableFamily != "business-artifact" {
		t.Errorf("deliverable family = %q", cfg.DeliverableFamily)
	}
}

func TestSemanticMatch(t *testing.T) {
	cfg := Default()
	cases := []struct {
		section string
		want    bool
	}{
		{"Pricing", true},
		{"Refined Target Customer Profile", true},
		{"ICP Definition", true},
		{"Channel Strategy Review", true},
		{"Revision History", false},
		{"Appendix", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := cfg.SemanticMatch(tc.section); got != tc.want {
			t.Errorf("SemanticMatch(%q) = %v, want %v", tc.section, got, tc.want)
		}
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `semantic_keywords:
  - pricing
  - distribution
deliverable_family: custom-artifact
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.SemanticMatch("Distribution Plan") {
		t.Error("overlaid keyword not matched")
	}
	if cfg.SemanticMatch("ICP Definition") {
		t.Error("replaced keyword list still matches default keyword")
	}
	if cfg.DeliverableFamily != "custom-artifact" {
		t.Errorf("deliverable family = %q", cfg.DeliverableFamily)
	}
	// Untouched sections keep defaults.
	if !cfg.ValidMode(ModeTrial) || !cfg.ValidStatus(StatusFactFindReady) {
		t.Error("defaults lost for unspecified sections")
	}
}

func TestLoadWithHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("deliverable_family: x\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, hash, err := LoadWithHash(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.HasPrefix(hash, "sha256:") || len(hash) != len("sha256:")+64 {
		t.Errorf("hash = %q, want sha256:<64 hex>", hash)
	}

	_, hash2, err := LoadWithHash(path)
	if err != nil || hash2 != hash {
		t.Errorf("hash not stable: %q vs %q (err %v)", hash, hash2, err)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	os.WriteFile(badYAML, []byte("modes: [unclosed"), 0o644)
	if _, err := Load(badYAML); err == nil {
		t.Error("malformed YAML accepted")
	}

	badRoute := filepath.Join(dir, "route.yaml")
	os.WriteFile(badRoute, []byte("routes:\n  mystery_status: somewhere\n"), 0o644)
	if _, err := Load(badRoute); err == nil {
		t.Error("route for unknown status accepted")
	}

	if _, err := Load(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
