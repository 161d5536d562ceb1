package store

import (
	"log/slog"

	"github.com/btouchard/tunnelmock/internal/notify"
)

// Journal records tunnel lifecycle events into a Store.
type Journal struct {
	store Store
}

// NewJournal creates a notify.Notifier backed by s.
func NewJournal(s Store) *Journal {
	return &Journal{store: s}
}

// Notify implements notify.Notifier. Attempt-start events are not stored;
// only their outcomes are.
func (j *Journal) Notify(event notify.Event) {
	var outcome string
	switch event.Type {
	case notify.TunnelEstablished:
		outcome = OutcomeEstablished
	case notify.TunnelFailed:
		outcome = OutcomeFailed
	case notify.TunnelUnavailable:
		outcome = OutcomeUnavailable
	case notify.TunnelClosed:
		outcome = OutcomeClosed
	default:
		return
	}

	rec := &AttemptRecord{
		Provider:  event.Provider,
		Port:      event.Port,
		Attempt:   event.Attempt,
		Outcome:   outcome,
		PublicURL: event.PublicURL,
		Duration:  event.Duration,
		CreatedAt: event.Time,
	}
	if outcome == OutcomeFailed || outcome == OutcomeUnavailable {
		rec.Error = event.Message
	}

	if err := j.store.RecordAttempt(rec); err != nil {
		slog.Warn("recording tunnel attempt failed", "type", event.Type, "error", err)
	}
}
