package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/tunnelmock/internal/stub"
)

// CreateStub returns a handler that builds and installs a stub.
func CreateStub(ms MockServer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		opts := stub.Options{
			URL:        stringArg(args, "url"),
			URLPattern: stringArg(args, "url_pattern"),
			Body:       stringArg(args, "body"),
			Method:     stringArg(args, "method"),
			Status:     intArg(args, "status", 0),
		}
		if raw, ok := args["headers"].(map[string]any); ok {
			opts.Headers = make(map[string]string, len(raw))
			for k, v := range raw {
				opts.Headers[k] = fmt.Sprint(v)
			}
		}

		def, err := stub.Build(opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid stub: %s", err)), nil
		}
		if err := ms.CreateStub(ctx, def); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to install stub: %s", err)), nil
		}

		target := def.Request.URL
		if target == "" {
			target = def.Request.URLPathPattern + " (pattern)"
		}
		return mcp.NewToolResultText(fmt.Sprintf("Stub installed: %s %s → %d\nReachable at %s",
			def.Request.Method, target, def.Response.Status, ms.PublicURL())), nil
	}
}

// InstallStubJSON returns a handler that installs a raw admin API mapping.
func InstallStubJSON(ms MockServer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := stringArg(req.GetArguments(), "mapping")
		if raw == "" {
			return mcp.NewToolResultError("mapping is required"), nil
		}
		if !json.Valid([]byte(raw)) {
			return mcp.NewToolResultError("mapping is not valid JSON"), nil
		}

		if err := ms.ManageMockEndpoint(ctx, raw); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to install mapping: %s", err)), nil
		}
		return mcp.NewToolResultText("Mapping installed."), nil
	}
}
