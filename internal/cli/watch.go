package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/driftq/internal/config"
	"github.com/ppiankov/driftq/internal/hook"
	"github.com/ppiankov/driftq/internal/persist"
	"github.com/ppiankov/driftq/internal/watcher"
)

var (
	watchInbox      string
	watchBusiness   string
	watchRegistry   string
	watchQueueState string
	watchTelemetry  string
	watchMode       string
	watchPoll       bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "Directory to watch for event-batch JSON files (required)")
	watchCmd.Flags().StringVar(&watchBusiness, "business", "", "Business code (required)")
	watchCmd.Flags().StringVar(&watchRegistry, "registry", "", "Path to registry JSON (required)")
	watchCmd.Flags().StringVar(&watchQueueState, "queue-state", "", "Path to queue-state JSON file (required)")
	watchCmd.Flags().StringVar(&watchTelemetry, "telemetry", "", "Path to telemetry JSONL file (required)")
	watchCmd.Flags().StringVar(&watchMode, "mode", config.ModeLive, "Run mode (trial or live)")
	watchCmd.Flags().BoolVar(&watchPoll, "poll", false, "Use polling instead of fsnotify (for NFS and similar)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox for event batches and dispatch them",
	Long: "Watches the inbox directory for event-batch JSON files dropped by the\n" +
		"upstream change detector. Each settled file runs through the hook, admitted\n" +
		"dispatches are persisted, and the file is renamed to .done.",
	RunE: runWatch,
}

// batchParams carries everything the per-file batch handler needs.
type batchParams struct {
	Business   string
	Registry   string
	QueueState string
	Telemetry  string
	Mode       string
	Clock      func() time.Time
	Config     *config.Config
}

// newBatchHandler builds the handler invoked per settled batch file: parse,
// run the hook, persist admitted dispatches, rename the file to .done.
// Batches are processed one at a time: the persistence layer's single-writer
// lock fails a concurrent writer instead of waiting, so without the mutex a
// burst flushed to parallel workers would drop every losing batch until the
// next restart.
func newBatchHandler(p batchParams) func(path string) {
	var mu sync.Mutex
	return func(path string) {
		mu.Lock()
		defer mu.Unlock()

		events, err := loadEventBatch(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			return
		}
		result := hook.Run(hook.Params{
			Business:       p.Business,
			RegistryPath:   p.Registry,
			QueueStatePath: p.QueueState,
			TelemetryPath:  p.Telemetry,
			Events:         events,
			Mode:           p.Mode,
			Clock:          p.Clock,
			Config:         p.Config,
		})
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		if !result.OK {
			fmt.Fprintf(os.Stderr, "batch %s failed: %s\n", path, result.Error)
			return
		}
		pres := persist.OrchestratorResult(persist.Options{
			QueueStatePath: p.QueueState,
			TelemetryPath:  p.Telemetry,
			Mode:           p.Mode,
			Business:       p.Business,
			Dispatched:     result.Dispatched,
			Config:         p.Config,
		})
		if !pres.OK {
			fmt.Fprintf(os.Stderr, "persist failed for %s: %s\n", path, pres.Err)
			return
		}
		fmt.Printf("%s: dispatched=%d suppressed=%d noop=%d persisted=%d\n",
			path, len(result.Dispatched), result.Suppressed, result.Noop, pres.NewEntriesWritten)
		if err := os.Rename(path, path+".done"); err != nil {
			fmt.Fprintf(os.Stderr, "mark %s done: %v\n", path, err)
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInbox == "" || watchBusiness == "" || watchRegistry == "" ||
		watchQueueState == "" || watchTelemetry == "" {
		return fmt.Errorf("--inbox, --business, --registry, --queue-state, and --telemetry are required")
	}
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	handler := newBatchHandler(batchParams{
		Business:   watchBusiness,
		Registry:   watchRegistry,
		QueueState: watchQueueState,
		Telemetry:  watchTelemetry,
		Mode:       watchMode,
		Config:     cfg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down watcher...")
		cancel()
	}()

	// Catch up on batches that arrived while the watcher was down.
	if err := watcher.ScanExisting(watchInbox, handler); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "watching %s\n", watchInbox)
	if watchPoll {
		return watcher.NewPollWatcher(watchInbox, handler, 5*time.Second).Run(ctx)
	}
	return watcher.NewInboxWatcher(watchInbox, handler).Run(ctx)
}
