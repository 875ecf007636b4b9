package hook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
)

var hookTime = time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)

func hookClock() time.Time { return hookTime }

func strptr(s string) *string { return &s }

func seedRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	return path
}

func deltaEvent(artifactID string) model.DeltaEvent {
	return model.DeltaEvent{
		ArtifactID:      artifactID,
		Business:        "hbag",
		BeforeSHA:       strptr("aaa"),
		AfterSHA:        "bbb",
		Path:            "docs/a.user.md",
		ChangedSections: []string{"Pricing"},
	}
}

func TestRunDispatchesEligibleEvent(t *testing.T) {
	regPath := seedRegistry(t,
		`{"artifacts":[{"artifact_id":"A-1","trigger_policy":"eligible","active":true}]}`)

	res := Run(Params{
		Business:     "hbag",
		RegistryPath: regPath,
		Events:       []model.DeltaEvent{deltaEvent("A-1")},
		Mode:         config.ModeTrial,
		Clock:        hookClock,
	})
	if !res.OK {
		t.Fatalf("hook failed: %s", res.Error)
	}
	if len(res.Dispatched) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(res.Dispatched))
	}
	if res.Dispatched[0].Status != config.StatusFactFindReady {
		t.Errorf("status = %q", res.Dispatched[0].Status)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
}

func TestRunDefaultsToLiveMode(t *testing.T) {
	regPath := seedRegistry(t,
		`{"artifacts":[{"artifact_id":"A-1","trigger_policy":"eligible","active":true}]}`)

	res := Run(Params{
		Business:     "hbag",
		RegistryPath: regPath,
		Events:       []model.DeltaEvent{deltaEvent("A-1")},
		Clock:        hookClock,
	})
	if !res.OK {
		t.Fatalf("hook failed: %s", res.Error)
	}
	if res.Dispatched[0].Mode != config.ModeLive {
		t.Errorf("mode = %q, want live default", res.Dispatched[0].Mode)
	}
}

func TestRunMissingParams(t *testing.T) {
	cases := []struct {
		name   string
		params Params
	}{
		{"no registry path", Params{Business: "hbag"}},
		{"no business", Params{RegistryPath: "/tmp/registry.json"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Run(tc.params)
			if res.OK {
				t.Fatal("hook succeeded without required params")
			}
			if res.Dispatched == nil || len(res.Dispatched) != 0 {
				t.Errorf("dispatched = %v, want empty non-nil slice", res.Dispatched)
			}
			if len(res.Warnings) == 0 {
				t.Error("no warning emitted")
			}
			if res.Suppressed < 0 || res.Noop < 0 {
				t.Error("negative counters")
			}
		})
	}
}

func TestRunRegistryFailureModes(t *testing.T) {
	cases := []struct {
		name    string
		regPath func(t *testing.T) string
		warning string
	}{
		{
			"missing file",
			func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") },
			"does not exist",
		},
		{
			"malformed json",
			func(t *testing.T) string { return seedRegistry(t, "{broken") },
			"not valid JSON",
		},
		{
			"missing artifacts key",
			func(t *testing.T) string { return seedRegistry(t, `{"registry_version":"registry.v2"}`) },
			"no artifacts key",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Run(Params{
				Business:     "hbag",
				RegistryPath: tc.regPath(t),
				Events:       []model.DeltaEvent{deltaEvent("A-1")},
				Mode:         config.ModeTrial,
				Clock:        hookClock,
			})
			if res.OK {
				t.Fatal("hook succeeded with unusable registry")
			}
			if len(res.Dispatched) != 0 {
				t.Error("packets dispatched despite registry failure")
			}
			found := false
			for _, w := range res.Warnings {
				if strings.Contains(w, tc.warning) {
					found = true
				}
			}
			if !found {
				t.Errorf("warnings = %v, want one containing %q", res.Warnings, tc.warning)
			}
		})
	}
}

func TestRunInvalidModeFailsCleanly(t *testing.T) {
	regPath := seedRegistry(t, `{"artifacts":[]}`)
	res := Run(Params{
		Business:     "hbag",
		RegistryPath: regPath,
		Events:       []model.DeltaEvent{deltaEvent("A-1")},
		Mode:         "production",
		Clock:        hookClock,
	})
	if res.OK {
		t.Fatal("invalid mode accepted")
	}
	if res.Error == "" {
		t.Error("no error for invalid mode")
	}
}

func TestRunSuppressesUnregisteredArtifacts(t *testing.T) {
	regPath := seedRegistry(t, `{"artifacts":[]}`)
	res := Run(Params{
		Business:     "hbag",
		RegistryPath: regPath,
		Events:       []model.DeltaEvent{deltaEvent("A-1")},
		Mode:         config.ModeTrial,
		Clock:        hookClock,
	})
	if !res.OK {
		t.Fatalf("hook failed: %s", res.Error)
	}
	if len(res.Dispatched) != 0 || res.Suppressed != 1 {
		t.Errorf("result = %+v, want one suppression", res)
	}
}

func TestRunWritesNoFiles(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.json")
	if err := os.WriteFile(regPath,
		[]byte(`{"artifacts":[{"artifact_id":"A-1","trigger_policy":"eligible","active":true}]}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	Run(Params{
		Business:       "hbag",
		RegistryPath:   regPath,
		QueueStatePath: filepath.Join(dir, "queue-state.json"),
		TelemetryPath:  filepath.Join(dir, "telemetry.jsonl"),
		Events:         []model.DeltaEvent{deltaEvent("A-1")},
		Mode:           config.ModeTrial,
		Clock:          hookClock,
	})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "registry.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("hook wrote files: %v", names)
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	regPath := seedRegistry(t, `{"artifacts":[]}`)
	res := Run(Params{
		Business:     "hbag",
		RegistryPath: regPath,
		Events:       []model.DeltaEvent{deltaEvent("A-1")},
		Mode:         config.ModeTrial,
		Clock:        func() time.Time { panic("clock exploded") },
	})
	if res.OK {
		t.Fatal("panicking hook reported success")
	}
	if !strings.Contains(res.Error, "internal panic") {
		t.Errorf("error = %q, want panic note", res.Error)
	}
	if res.Dispatched == nil {
		t.Error("dispatched slice is nil after recovery")
	}
}
