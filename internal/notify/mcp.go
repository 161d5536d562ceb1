package notify

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier pushes tunnel lifecycle updates to MCP clients.
type MCPNotifier struct {
	sender   MCPSender
	debounce time.Duration

	mu       sync.Mutex
	lastSent map[int]time.Time // port → last progress notification time
}

// NewMCPNotifier creates an MCPNotifier with the given debounce interval
// for attempt events. Outcome events are always sent immediately.
func NewMCPNotifier(sender MCPSender, debounce time.Duration) *MCPNotifier {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &MCPNotifier{
		sender:   sender,
		debounce: debounce,
		lastSent: make(map[int]time.Time),
	}
}

// Notify sends an MCP notification for the given event.
func (n *MCPNotifier) Notify(event Event) {
	switch event.Type {
	case TunnelAttempt:
		n.sendProgress(event)
	case TunnelFailed:
		n.sendMessage(event, "warning")
	case TunnelEstablished, TunnelClosed:
		n.clearDebounce(event.Port)
		n.sendMessage(event, "info")
	case TunnelUnavailable:
		n.clearDebounce(event.Port)
		n.sendMessage(event, "error")
	default:
		slog.Debug("mcp notifier: unknown event type", "type", event.Type)
	}
}

// sendProgress sends a notifications/progress with debounce.
func (n *MCPNotifier) sendProgress(event Event) {
	n.mu.Lock()
	last, ok := n.lastSent[event.Port]
	if ok && time.Since(last) < n.debounce {
		n.mu.Unlock()
		return
	}
	n.lastSent[event.Port] = time.Now()
	n.mu.Unlock()

	params := map[string]any{
		"progressToken": "tunnel-" + strconv.Itoa(event.Port),
		"progress":      event.Attempt,
		"message":       event.Message,
	}

	n.send(event.MCPSessionID, "notifications/progress", params)
}

// sendMessage sends a notifications/message for outcome events.
func (n *MCPNotifier) sendMessage(event Event, level string) {
	params := map[string]any{
		"level":  level,
		"logger": "tunnelmock",
		"data": map[string]any{
			"type":       event.Type,
			"provider":   event.Provider,
			"port":       event.Port,
			"attempt":    event.Attempt,
			"public_url": event.PublicURL,
			"message":    event.Message,
		},
	}

	n.send(event.MCPSessionID, "notifications/message", params)
}

// send dispatches to a specific client or broadcasts.
func (n *MCPNotifier) send(mcpSessionID, method string, params map[string]any) {
	if mcpSessionID != "" {
		if err := n.sender.SendNotificationToSpecificClient(mcpSessionID, method, params); err != nil {
			slog.Debug("mcp notification failed, falling back to broadcast",
				"session_id", mcpSessionID,
				"method", method,
				"error", err)
			n.sender.SendNotificationToAllClients(method, params)
		}
		return
	}
	n.sender.SendNotificationToAllClients(method, params)
}

func (n *MCPNotifier) clearDebounce(port int) {
	n.mu.Lock()
	delete(n.lastSent, port)
	n.mu.Unlock()
}
