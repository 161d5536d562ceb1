package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/tunnelmock/internal/mcp/handlers"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Mock    handlers.MockServer
	History handlers.AttemptHistory // nil when the database is disabled
	Version string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"tunnelmock",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}
