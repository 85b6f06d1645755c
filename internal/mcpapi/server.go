// Package mcpapi exposes the agent runner's live state and bench
// triggers as MCP tools, so an AI agent can inspect report/bench_knobs
// and kick off a calibration run over stdio.
package mcpapi

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/resctlgo/cgdemo/internal/intf"
)

// RunnerAPI is the subset of *runner.Runner the MCP tools drive; kept as
// an interface here so this package never imports runner (which would
// otherwise import mcpapi back for the agent command's wiring).
type RunnerAPI interface {
	State() intf.RunnerState
	BenchKnobs() intf.BenchKnobs
	Cmd() intf.Cmd
	RequestBenchHashd() error
	RequestBenchIOCost() error
	SetHashdActive(idx int, active bool) error
}

// Server wraps the MCP server instance bound to a running agent.
type Server struct {
	mcpServer *server.MCPServer
	paths     *intf.Paths
	runner    RunnerAPI
}

// NewServer builds an MCP server exposing paths' on-disk report/bench
// files and runner's live command surface.
func NewServer(version string, paths *intf.Paths, runner RunnerAPI) *Server {
	s := server.NewMCPServer("cgdemo", version, server.WithLogging())
	h := &handlers{paths: paths, runner: runner}
	registerTools(s, h)
	return &Server{mcpServer: s, paths: paths, runner: runner}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func registerTools(s *server.MCPServer, h *handlers) {
	s.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("Returns the agent's most recent periodic report: per-slice usage, hashd status, IO latency percentiles, and iocost vrate."),
	), h.handleGetReport)

	s.AddTool(mcp.NewTool("get_bench_knobs",
		mcp.WithDescription("Returns the currently calibrated hashd and iocost knobs, including their sequence numbers."),
	), h.handleGetBenchKnobs)

	s.AddTool(mcp.NewTool("get_cmd",
		mcp.WithDescription("Returns the live command state: which hashd instances are active and the last requested bench sequences."),
	), h.handleGetCmd)

	s.AddTool(mcp.NewTool("trigger_bench_hashd",
		mcp.WithDescription("Requests a fresh hashd calibration run. The agent runner picks it up on its next reconciliation tick; poll get_bench_knobs for the new hashd_seq."),
	), h.handleTriggerBenchHashd)

	s.AddTool(mcp.NewTool("trigger_bench_iocost",
		mcp.WithDescription("Requests a fresh iocost QoS sweep and tune-solver pass. This is a long-running operation; poll get_bench_knobs for the new iocost_seq."),
	), h.handleTriggerBenchIOCost)

	s.AddTool(mcp.NewTool("set_hashd_active",
		mcp.WithDescription("Activates or deactivates one of the two hashd workload instances."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Hashd instance index, 0 or 1")),
		mcp.WithBoolean("active", mcp.Required(), mcp.Description("Whether the instance should be running")),
	), h.handleSetHashdActive)
}
