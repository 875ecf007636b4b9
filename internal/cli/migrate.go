package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/driftq/internal/model"
	"github.com/ppiankov/driftq/internal/registry"
)

var (
	migrateInput         string
	migrateOutput        string
	migrateReport        string
	migratePilotBusiness string
	migratePilotOutput   string
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateInput, "input", "", "Path to registry.v1 JSON (required)")
	migrateCmd.Flags().StringVar(&migrateOutput, "output", "", "Path for migrated registry.v2 JSON (required)")
	migrateCmd.Flags().StringVar(&migrateReport, "report", "", "Optional path for Markdown migration report")
	migrateCmd.Flags().StringVar(&migratePilotBusiness, "pilot-business", "", "Business code for pilot classification table")
	migrateCmd.Flags().StringVar(&migratePilotOutput, "pilot-output", "", "Path for pilot classification Markdown")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a registry.v1 file to registry.v2",
	Long: "Reclassifies every artifact under the fail-closed v2 policy model and\n" +
		"writes the migrated registry plus an optional Markdown report.\n" +
		"Exits 1 when a fail-open condition is detected, 2 on usage errors.",
	RunE: runMigrate,
}

func writeWithParents(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateInput == "" || migrateOutput == "" {
		fmt.Fprintln(os.Stderr, "Usage: driftq migrate --input <registry.v1.json> --output <registry.v2.json> [--report <report.md>] [--pilot-business <BIZ> --pilot-output <pilot.md>]")
		os.Exit(2)
	}

	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(migrateInput)
	if err != nil {
		return fmt.Errorf("read input registry: %w", err)
	}

	result := registry.Migrate(data, time.Now(), cfg)

	out, err := registry.MarshalV2(&result.Registry)
	if err != nil {
		return err
	}
	if err := writeWithParents(migrateOutput, out); err != nil {
		return fmt.Errorf("write migrated registry: %w", err)
	}

	if migrateReport != "" {
		if err := writeWithParents(migrateReport, registry.RenderReport(result)); err != nil {
			return fmt.Errorf("write migration report: %w", err)
		}
	}

	if migratePilotBusiness != "" && migratePilotOutput != "" {
		rows := registry.PilotRows(migratePilotBusiness)
		pilot := registry.RenderPilot(migratePilotBusiness, rows, model.Timestamp(time.Now()))
		if err := writeWithParents(migratePilotOutput, pilot); err != nil {
			return fmt.Errorf("write pilot classification: %w", err)
		}
	}

	if !result.OK {
		fmt.Fprintf(os.Stderr, "migration completed with blocking conditions (fail_open_detected=%v)\n",
			result.Report.FailOpenDetected)
		os.Exit(1)
	}

	c := result.Report.Counts
	fmt.Printf("OK input=%d output=%d classified=%d inferred=%d unknown=%d blocked=%d\n",
		c.InputTotal, c.OutputTotal, c.Classified, c.Inferred, c.Unknown, c.Blocked)
	return nil
}
