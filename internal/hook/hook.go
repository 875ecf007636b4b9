// Package hook is the composition boundary invoked by external orchestration:
// load the registry file, run the orchestrator over one business's event
// batch, and report the outcome. The hook never panics and never writes
// files; persisting the result is the caller's explicit next step.
package hook

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/orchestrator"
	"github.com/ppiankov/driftq/internal/registry"
)

// Params is one hook invocation.
type Params struct {
	Business       string
	RegistryPath   string
	QueueStatePath string
	TelemetryPath  string
	Events         []model.DeltaEvent
	// Mode defaults to live; the hook is the production entry point.
	Mode   string
	Clock  func() time.Time
	Config *config.Config
}

// Result is the hook outcome. Suppressed and Noop are always non-negative,
// and Dispatched is always non-nil, even when OK is false.
type Result struct {
	OK         bool
	Error      string
	Dispatched []model.DispatchPacket
	Suppressed int
	Noop       int
	Warnings   []string
}

// Run executes the hook. Every failure mode, including a panic anywhere
// below, degrades to OK:false with a descriptive error; the caller's
// orchestration layer must never be blocked by this subsystem.
func Run(p Params) (result Result) {
	result = Result{Dispatched: []model.DispatchPacket{}, Warnings: []string{}}
	defer func() {
		if r := recover(); r != nil {
			result.OK = false
			result.Error = fmt.Sprintf("hook: internal panic: %v", r)
			result.Dispatched = []model.DispatchPacket{}
			result.Warnings = append(result.Warnings, "hook recovered from panic; no state was written")
		}
	}()

	if p.RegistryPath == "" {
		result.Error = "hook: registry path is required"
		result.Warnings = append(result.Warnings, "no registry path supplied; nothing was dispatched")
		return result
	}
	if p.Business == "" {
		result.Error = "hook: business is required"
		result.Warnings = append(result.Warnings, "no business supplied; nothing was dispatched")
		return result
	}

	mode := p.Mode
	if mode == "" {
		mode = config.ModeLive
	}

	reg, err := registry.LoadSnapshot(p.RegistryPath)
	if err != nil {
		result.Error = fmt.Sprintf("hook: %v", err)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			result.Warnings = append(result.Warnings, fmt.Sprintf("registry file %s does not exist", p.RegistryPath))
		case errors.Is(err, registry.ErrMalformed):
			result.Warnings = append(result.Warnings, "registry file is not valid JSON; dispatch is disabled until it is repaired")
		case errors.Is(err, registry.ErrNoArtifacts):
			result.Warnings = append(result.Warnings, "registry file has no artifacts key; dispatch is disabled until it is repaired")
		default:
			result.Warnings = append(result.Warnings, "registry file could not be read")
		}
		return result
	}

	orch := orchestrator.Run(orchestrator.Params{
		Mode:     mode,
		Events:   p.Events,
		Registry: reg,
		Clock:    p.Clock,
		Config:   p.Config,
	})
	if !orch.OK {
		result.Error = orch.Error
		result.Suppressed = orch.Suppressed
		result.Noop = orch.Noop
		return result
	}

	result.OK = true
	result.Dispatched = orch.Dispatched
	result.Suppressed = orch.Suppressed
	result.Noop = orch.Noop
	return result
}
