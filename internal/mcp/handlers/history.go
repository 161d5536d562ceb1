package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/tunnelmock/internal/store"
)

// AttemptHistory reads the tunnel attempt journal.
type AttemptHistory interface {
	ListAttempts(f store.AttemptFilter) ([]store.AttemptRecord, error)
	ProviderStats(since time.Time) ([]store.ProviderStat, error)
}

// TunnelHistory returns a handler summarising past tunnel attempts.
func TunnelHistory(h AttemptHistory) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		filter := store.AttemptFilter{
			Provider: stringArg(args, "provider"),
			Limit:    intArg(args, "limit", 20),
		}

		attempts, err := h.ListAttempts(filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read history: %s", err)), nil
		}
		stats, err := h.ProviderStats(time.Time{})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read provider stats: %s", err)), nil
		}

		return mcp.NewToolResultText(FormatHistory(attempts, stats)), nil
	}
}

// FormatHistory renders attempts and per-provider stats as plain text.
func FormatHistory(attempts []store.AttemptRecord, stats []store.ProviderStat) string {
	var b strings.Builder

	if len(stats) > 0 {
		b.WriteString("Providers:\n")
		for _, s := range stats {
			fmt.Fprintf(&b, "  %-14s %3d attempts, %3.0f%% established", s.Provider, s.Attempts, s.SuccessRate()*100)
			if s.AvgEstablish > 0 {
				fmt.Fprintf(&b, ", avg %s", s.AvgEstablish.Round(time.Millisecond))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(attempts) == 0 {
		b.WriteString("No tunnel attempts recorded.")
		return b.String()
	}

	b.WriteString("Recent attempts:\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "  %s  %-12s %-14s port %d", a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.Outcome, a.Provider, a.Port)
		if a.PublicURL != "" {
			fmt.Fprintf(&b, "  %s", a.PublicURL)
		}
		if a.Error != "" {
			fmt.Fprintf(&b, "  error: %s", a.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
