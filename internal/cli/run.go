package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/hook"
	"github.com/ppiankov/driftq/internal/ledger"
	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/persist"
	"github.com/ppiankov/driftq/internal/route"
)

var (
	runBusiness   string
	runRegistry   string
	runEvents     string
	runQueueState string
	runTelemetry  string
	runMode       string
	runPersist    bool
	runLedgerPath string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runBusiness, "business", "", "Business code (required)")
	runCmd.Flags().StringVar(&runRegistry, "registry", "", "Path to registry JSON (required)")
	runCmd.Flags().StringVar(&runEvents, "events", "", "Path to event-batch JSON file (required)")
	runCmd.Flags().StringVar(&runQueueState, "queue-state", "", "Path to queue-state JSON file")
	runCmd.Flags().StringVar(&runTelemetry, "telemetry", "", "Path to telemetry JSONL file")
	runCmd.Flags().StringVar(&runMode, "mode", config.ModeLive, "Run mode (trial or live)")
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "Persist admitted dispatches to the queue-state and telemetry files")
	runCmd.Flags().StringVar(&runLedgerPath, "ledger", "", "Optional dispatch-ledger JSONL to append routed dispatches to")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatch hook over one event batch",
	Long: "Loads the registry, classifies every event in the batch, and prints the\n" +
		"outcome. With --persist, admitted dispatches are written through to the\n" +
		"queue-state and telemetry files and routed payloads recorded in the ledger.",
	RunE: runRun,
}

// eventBatch is the on-disk input format: either a bare array of events or
// an object with an events key.
func loadEventBatch(path string) ([]model.DeltaEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event batch: %w", err)
	}
	var events []model.DeltaEvent
	if err := json.Unmarshal(data, &events); err == nil {
		return events, nil
	}
	var wrapped struct {
		Events []model.DeltaEvent `json:"events"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("event batch %s is not valid JSON: %w", path, err)
	}
	if wrapped.Events == nil {
		return nil, fmt.Errorf("event batch %s has no events key", path)
	}
	return wrapped.Events, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	if runBusiness == "" || runRegistry == "" || runEvents == "" {
		return fmt.Errorf("--business, --registry, and --events are required")
	}
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	events, err := loadEventBatch(runEvents)
	if err != nil {
		return err
	}

	result := hook.Run(hook.Params{
		Business:       runBusiness,
		RegistryPath:   runRegistry,
		QueueStatePath: runQueueState,
		TelemetryPath:  runTelemetry,
		Events:         events,
		Mode:           runMode,
		Config:         cfg,
	})

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if !result.OK {
		return fmt.Errorf("%s", result.Error)
	}

	fmt.Printf("dispatched=%d suppressed=%d noop=%d\n",
		len(result.Dispatched), result.Suppressed, result.Noop)
	for _, p := range result.Dispatched {
		fmt.Printf("  %s %s status=%s route=%s priority=%s\n",
			p.DispatchID, p.ArtifactID, p.Status, p.RecommendedRoute, p.Priority)
	}

	if !runPersist {
		return nil
	}
	if runQueueState == "" || runTelemetry == "" {
		return fmt.Errorf("--persist requires --queue-state and --telemetry")
	}

	pres := persist.OrchestratorResult(persist.Options{
		QueueStatePath: runQueueState,
		TelemetryPath:  runTelemetry,
		Mode:           runMode,
		Business:       runBusiness,
		Dispatched:     result.Dispatched,
		Config:         cfg,
	})
	if !pres.OK {
		return fmt.Errorf("%s", pres.Err)
	}
	fmt.Printf("persisted new_entries=%d telemetry_records=%d\n",
		pres.NewEntriesWritten, pres.TelemetryRecordsWritten)

	if runLedgerPath == "" {
		return nil
	}
	led, err := ledger.Open(runLedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	runID := ledger.NewRunID()
	for _, p := range result.Dispatched {
		rr := route.Dispatch(p, cfg)
		entry := ledger.Entry{
			Timestamp:  model.Timestamp(time.Now()),
			RunID:      runID,
			DispatchID: p.DispatchID,
			Business:   p.Business,
			ArtifactID: p.ArtifactID,
			Status:     p.Status,
		}
		if rr.OK {
			entry.Route = rr.Route
			entry.Outcome = "routed"
		} else {
			entry.Outcome = "rejected"
			entry.Reason = rr.Code
		}
		if err := led.Record(entry); err != nil {
			return err
		}
	}
	fmt.Printf("ledger appended %d entries (%s)\n", len(result.Dispatched), runLedgerPath)
	return nil
}
