// Package mcp exposes the running window manager to MCP clients over
// stdio. Every tool is a thin wrapper around an IPC query.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/wmcore/internal/ipc"
)

const (
	ServerName    = "wmcore"
	ServerVersion = "0.1.0"
)

// Daemon is the part of the IPC client the tools use.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	ListToplevels() ([]ipc.ToplevelInfo, error)
	ListOutputs() ([]ipc.OutputInfo, error)
	GetModule() (*ipc.ModuleData, error)
	ReloadModule(path string) (*ipc.ModuleData, error)
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server for wmcore.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
}

// NewServer creates an MCP server that answers from d.
func NewServer(d Daemon) *Server {
	s := &Server{daemon: d}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "wm_status",
		Description: "Report the window manager's state: toplevel and output counts, pending configure acknowledgements, keyboard and pointer focus, active modifiers and the loaded policy module.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_toplevels",
		Description: "List every toplevel window with its lifecycle phase, app id, title, state flags, geometry and unacknowledged configure serials.",
	}, s.handleListToplevels)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_outputs",
		Description: "List connected outputs with their geometry and refresh rate in millihertz.",
	}, s.handleListOutputs)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "module_info",
		Description: "Describe the active policy module: name, version, ABI, instance id, failure count and the last load error.",
	}, s.handleModuleInfo)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "reload_module",
		Description: "Reload the policy module. Existing toplevels and outputs are replayed into the new instance. If loading fails the running policy stays active and the error is returned.",
	}, s.handleReloadModule)
}
