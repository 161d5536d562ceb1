package notify

import "time"

// Event types.
const (
	TunnelAttempt     = "tunnel.attempt"
	TunnelFailed      = "tunnel.failed"
	TunnelEstablished = "tunnel.established"
	TunnelUnavailable = "tunnel.unavailable"
	TunnelClosed      = "tunnel.closed"
)

// Event represents a tunnel lifecycle notification.
type Event struct {
	Type      string
	Provider  string
	Port      int
	Attempt   int
	PublicURL string
	Message   string
	Duration  time.Duration
	Time      time.Time

	// MCPSessionID targets a specific MCP client session.
	// Empty means broadcast to all.
	MCPSessionID string
}

// Notifier receives tunnel lifecycle notifications.
type Notifier interface {
	Notify(event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(event Event) { f(event) }

// Hub dispatches events to multiple notifiers.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers. Nil entries are skipped.
func NewHub(notifiers ...Notifier) *Hub {
	h := &Hub{}
	for _, n := range notifiers {
		if n != nil {
			h.notifiers = append(h.notifiers, n)
		}
	}
	return h
}

// Add registers another notifier.
func (h *Hub) Add(n Notifier) {
	h.notifiers = append(h.notifiers, n)
}

// Notify sends an event to all registered notifiers, in order.
func (h *Hub) Notify(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	for _, n := range h.notifiers {
		n.Notify(event)
	}
}
