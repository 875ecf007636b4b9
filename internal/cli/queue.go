package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/persist"
	"github.com/ppiankov/driftq/internal/queue"
)

var (
	queueStatePath   string
	queueTelemetry   string
	queueDispatchID  string
	queueTargetState string
	queueAdvanceNote string
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.PersistentFlags().StringVar(&queueStatePath, "queue-state", "", "Path to queue-state JSON file (required)")
	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueAdvanceCmd)
	queueAdvanceCmd.Flags().StringVar(&queueTelemetry, "telemetry", "", "Path to telemetry JSONL file (required)")
	queueAdvanceCmd.Flags().StringVar(&queueDispatchID, "dispatch", "", "dispatch_id to advance (required)")
	queueAdvanceCmd.Flags().StringVar(&queueTargetState, "to", "", "Target state: processed, error, or skipped (required)")
	queueAdvanceCmd.Flags().StringVar(&queueAdvanceNote, "reason", "", "Optional reason recorded on the entry")
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and advance the persisted dispatch queue",
}

func loadState() (*persist.QueueStateFile, error) {
	if queueStatePath == "" {
		return nil, fmt.Errorf("--queue-state is required")
	}
	state, err := persist.LoadQueueState(queueStatePath)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("no queue state at %s", queueStatePath)
	}
	return state, nil
}

func restoreFromState(state *persist.QueueStateFile) (*queue.Queue, error) {
	cfg, err := pipelineConfig()
	if err != nil {
		return nil, err
	}
	return persist.RestoreQueue(state, queue.Options{Mode: state.Mode, Config: cfg})
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print queue aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := loadState()
		if err != nil {
			return err
		}
		q, err := restoreFromState(state)
		if err != nil {
			return err
		}
		agg := q.Aggregates()
		out, _ := json.MarshalIndent(agg, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries sorted by event timestamp",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := loadState()
		if err != nil {
			return err
		}
		q, err := restoreFromState(state)
		if err != nil {
			return err
		}
		for _, e := range q.ListEntries() {
			artifact := "-"
			if e.Packet != nil {
				artifact = e.Packet.ArtifactID
			}
			reason := ""
			if e.StateReason != nil {
				reason = " reason=" + *e.StateReason
			}
			fmt.Printf("%s %s %s %s%s\n",
				e.EventTimestamp, e.DispatchID, e.QueueState, artifact, reason)
		}
		return nil
	},
}

var queueAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance one queue entry to a new lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueDispatchID == "" || queueTargetState == "" {
			return fmt.Errorf("--dispatch and --to are required")
		}
		if queueTelemetry == "" {
			return fmt.Errorf("--telemetry is required")
		}
		lock, err := persist.Acquire(queueStatePath)
		if err != nil {
			return err
		}
		defer lock.Release()
		state, err := loadState()
		if err != nil {
			return err
		}
		q, err := restoreFromState(state)
		if err != nil {
			return err
		}

		adv := q.Advance(queueDispatchID, model.QueueState(queueTargetState), queueAdvanceNote)
		if !adv.OK {
			return fmt.Errorf("%s", adv.Reason)
		}

		now := model.Timestamp(time.Now())
		for i := range state.Entries {
			if state.Entries[i].DispatchID == queueDispatchID {
				state.Entries[i].QueueState = adv.Entry.QueueState
				state.Entries[i].StateReason = adv.Entry.StateReason
			}
		}
		state.GeneratedAt = now
		if err := persist.WriteQueueState(queueStatePath, state); err != nil {
			return err
		}

		var reasonPtr *string
		if queueAdvanceNote != "" {
			r := queueAdvanceNote
			reasonPtr = &r
		}
		tele := q.Telemetry()
		kind := queue.KindAdvancedToProcessed
		if len(tele) > 0 {
			kind = tele[len(tele)-1].Kind
		}
		if _, err := persist.AppendTelemetry(queueTelemetry, []persist.TelemetryRecord{{
			RecordedAt: now,
			DispatchID: queueDispatchID,
			Mode:       state.Mode,
			Business:   state.Business,
			QueueState: adv.Entry.QueueState,
			Kind:       kind,
			Reason:     reasonPtr,
		}}); err != nil {
			return err
		}

		fmt.Printf("%s -> %s\n", queueDispatchID, adv.Entry.QueueState)
		return nil
	},
}
