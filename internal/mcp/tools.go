package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/tunnelmock/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	s.AddTool(
		mcp.NewTool("server_info",
			mcp.WithDescription("Show the public tunnel URL, the relay provider and the local mock address."),
		),
		handlers.ServerInfo(deps.Mock),
	)

	s.AddTool(
		mcp.NewTool("create_stub",
			mcp.WithDescription("Install a stub on the mock server. Give exactly one of url or url_pattern. Response bodies support Handlebars templates such as {{request.path}} and {{jsonPath request.body '$.id'}}."),
			mcp.WithString("url",
				mcp.Description("Exact URL to match, including the query string"),
			),
			mcp.WithString("url_pattern",
				mcp.Description("Regular expression matched against the full URL path"),
			),
			mcp.WithString("method",
				mcp.Description("HTTP method to match (default: GET)"),
				mcp.Enum("GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "ANY"),
			),
			mcp.WithNumber("status",
				mcp.Description("Response status code (default: 200)"),
			),
			mcp.WithString("body",
				mcp.Description("Response body as JSON text"),
			),
			mcp.WithObject("headers",
				mcp.Description("Extra response headers. Content-Type defaults to application/json."),
			),
		),
		handlers.CreateStub(deps.Mock),
	)

	s.AddTool(
		mcp.NewTool("install_stub_json",
			mcp.WithDescription("Install a raw stub mapping in the admin API format ({\"request\": {...}, \"response\": {...}})."),
			mcp.WithString("mapping",
				mcp.Required(),
				mcp.Description("The mapping as JSON text"),
			),
		),
		handlers.InstallStubJSON(deps.Mock),
	)

	s.AddTool(
		mcp.NewTool("list_requests",
			mcp.WithDescription("List requests captured by the mock server, newest first."),
			mcp.WithString("url_contains",
				mcp.Description("Only show requests whose URL contains this text"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of requests to show (default: 20)"),
			),
		),
		handlers.ListRequests(deps.Mock),
	)

	s.AddTool(
		mcp.NewTool("wait_for_requests",
			mcp.WithDescription("Wait until a request whose URL contains url_contains arrives, then return the bodies of all such requests. Gives up after the configured events timeout."),
			mcp.WithString("url_contains",
				mcp.Required(),
				mcp.Description("Substring the request URL must contain"),
			),
		),
		handlers.WaitForRequests(deps.Mock),
	)

	s.AddTool(
		mcp.NewTool("clear_requests",
			mcp.WithDescription("Clear the captured request journal. Stubs are kept."),
		),
		handlers.ClearRequests(deps.Mock),
	)

	if deps.History == nil {
		return
	}

	s.AddTool(
		mcp.NewTool("tunnel_history",
			mcp.WithDescription("Show recent tunnel attempts and per-provider success rates."),
			mcp.WithString("provider",
				mcp.Description("Only show attempts for this provider"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of attempts to show (default: 20)"),
			),
		),
		handlers.TunnelHistory(deps.History),
	)
}
