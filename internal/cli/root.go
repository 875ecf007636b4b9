// Package cli wires the driftq commands: registry migration, orchestrator
// runs, the inbox watcher, queue inspection, ledger verification, and the
// MCP tool server.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/driftq/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "driftq",
	Short: "Artifact-delta dispatch pipeline",
	Long: "Watches changes to registered business artifacts, classifies each delta\n" +
		"against a fail-closed registry, and dispatches admitted work through an\n" +
		"idempotent queue with durable state and telemetry.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to pipeline config YAML (defaults to built-ins)")
}

// pipelineConfig loads the --config file, or the defaults when none given.
func pipelineConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
