package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/tunnelmock/internal/admin"
	"github.com/btouchard/tunnelmock/internal/poll"
)

const (
	defaultRequestLimit = 20
	maxBodyPreview      = 2000
)

// ListRequests returns a handler listing captured requests, newest first.
func ListRequests(ms MockServer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		contains := stringArg(args, "url_contains")
		limit := intArg(args, "limit", defaultRequestLimit)

		reqs, err := ms.AllEvents(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list requests: %s", err)), nil
		}

		var matched []admin.CapturedRequest
		for _, r := range reqs {
			if contains == "" || strings.Contains(r.URL, contains) {
				matched = append(matched, r)
			}
		}

		if len(matched) == 0 {
			return mcp.NewToolResultText("No requests captured."), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d request(s) captured", len(matched))
		if len(matched) > limit {
			fmt.Fprintf(&b, ", showing the %d most recent", limit)
			matched = matched[:limit]
		}
		b.WriteString(":\n")
		for _, r := range matched {
			flag := ""
			if !r.Matched {
				flag = " (unmatched)"
			}
			fmt.Fprintf(&b, "\n[%s] %s %s%s\n", r.LoggedDate.Format("15:04:05"), r.Method, r.URL, flag)
			if r.Body != "" {
				fmt.Fprintf(&b, "%s\n", truncate(r.Body, maxBodyPreview))
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

// WaitForRequests returns a handler that blocks until a request whose URL
// contains url_contains is captured, then returns the matching bodies.
func WaitForRequests(ms MockServer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		contains := stringArg(req.GetArguments(), "url_contains")
		if contains == "" {
			return mcp.NewToolResultError("url_contains is required"), nil
		}

		bodies, err := ms.EndpointEvents(ctx, contains)
		if errors.Is(err, poll.ErrTimeout) {
			return mcp.NewToolResultText(fmt.Sprintf("No request to %q arrived before the timeout.", contains)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read requests: %s", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d request(s) to %q:\n", len(bodies), contains)
		for i, body := range bodies {
			fmt.Fprintf(&b, "\n#%d\n%s\n", i+1, truncate(body, maxBodyPreview))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

// ClearRequests returns a handler that empties the request journal.
func ClearRequests(ms MockServer) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := ms.CleanAllEvents(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to clear requests: %s", err)), nil
		}
		return mcp.NewToolResultText("Captured requests cleared."), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
