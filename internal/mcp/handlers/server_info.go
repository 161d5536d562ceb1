package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerInfo returns a handler describing the running mock server.
func ServerInfo(ms MockServer) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "Public URL: %s\n", ms.PublicURL())
		fmt.Fprintf(&b, "Provider: %s\n", ms.Provider())
		fmt.Fprintf(&b, "Local URL: %s\n", ms.LocalURL())
		fmt.Fprintf(&b, "Mode: %s\n", ms.Mode())
		b.WriteString("\nBaseline stubs: POST /default, POST /foo, POST /bar.*")
		return mcp.NewToolResultText(b.String()), nil
	}
}
