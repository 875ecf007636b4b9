// Package mcp exposes the dispatch pipeline as MCP tools over stdio, so an
// operator agent can classify batches, inspect the queue, and advance entries
// without shelling out to the CLI. The server rehydrates its queue from the
// persisted state file and persists every mutation back.
package mcp

import (
	"context"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/driftq/internal/config"
)

// Config holds server configuration.
type Config struct {
	RegistryPath   string
	QueueStatePath string
	TelemetryPath  string
	Business       string
	Mode           string
	ConfigPath     string
}

// Server wraps the MCP SDK server around the pipeline's file-backed state.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       Config
	pipeline  *config.Config
	clock     func() time.Time
	// mu serializes queue-state read-modify-write across tool calls.
	mu sync.Mutex
}

// New creates an MCP server for the given pipeline paths.
func New(cfg Config) (*Server, error) {
	pipeline := config.Default()
	if cfg.ConfigPath != "" {
		loaded, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		pipeline = loaded
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModeLive
	}

	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		clock:    time.Now,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "driftq",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all driftq tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "driftq_check",
		Description: "Dry-run classification of an artifact-delta event batch against the registry. Reports what would be dispatched without writing any state.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "driftq_enqueue",
		Description: "Run the hook over an event batch and persist admitted dispatches to the queue-state and telemetry files.",
	}, s.handleEnqueue)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "driftq_advance",
		Description: "Advance a persisted queue entry to a new lifecycle state (processed, error, or skipped). Invalid transitions return the reason.",
	}, s.handleAdvance)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "driftq_status",
		Description: "Report queue aggregates: per-state counts, duplicate suppressions, and the route-accuracy denominator.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "driftq_list",
		Description: "List queue entries sorted by event timestamp then dispatch_id.",
	}, s.handleList)
}
