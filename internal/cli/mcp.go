package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/driftq/internal/config"
	driftmcp "github.com/ppiankov/driftq/internal/mcp"
)

var (
	mcpRegistry   string
	mcpQueueState string
	mcpTelemetry  string
	mcpBusiness   string
	mcpMode       string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpRegistry, "registry", "", "Path to registry JSON (required)")
	mcpCmd.Flags().StringVar(&mcpQueueState, "queue-state", "", "Path to queue-state JSON file (required)")
	mcpCmd.Flags().StringVar(&mcpTelemetry, "telemetry", "", "Path to telemetry JSONL file (required)")
	mcpCmd.Flags().StringVar(&mcpBusiness, "business", "", "Default business code for tool calls")
	mcpCmd.Flags().StringVar(&mcpMode, "mode", config.ModeLive, "Run mode (trial or live)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs driftq as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes pipeline tools: check, enqueue, advance, status, list.",
	RunE: runMCPServer,
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	if mcpRegistry == "" || mcpQueueState == "" || mcpTelemetry == "" {
		return fmt.Errorf("--registry, --queue-state, and --telemetry are required")
	}

	srv, err := driftmcp.New(driftmcp.Config{
		RegistryPath:   mcpRegistry,
		QueueStatePath: mcpQueueState,
		TelemetryPath:  mcpTelemetry,
		Business:       mcpBusiness,
		Mode:           mcpMode,
		ConfigPath:     configPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "driftq MCP server running on stdio")
	return srv.Run(ctx)
}
