package store

import (
	"time"
)

// Store is the persistence interface for the tunnel attempt journal.
// Defined at the consumer side per Go conventions.
type Store interface {
	RecordAttempt(a *AttemptRecord) error
	ListAttempts(f AttemptFilter) ([]AttemptRecord, error)
	ProviderStats(since time.Time) ([]ProviderStat, error)

	// Maintenance
	Cleanup(olderThan time.Time) error
	Close() error
}

// Attempt outcomes.
const (
	OutcomeEstablished = "established"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
	OutcomeClosed      = "closed"
)

// AttemptRecord is one recorded tunnel lifecycle outcome.
type AttemptRecord struct {
	ID        int64
	Provider  string
	Port      int
	Attempt   int
	Outcome   string
	PublicURL string
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// AttemptFilter specifies criteria for listing attempts.
type AttemptFilter struct {
	Provider string
	Outcome  string
	Since    time.Time
	Limit    int
}

// ProviderStat aggregates attempts per provider.
type ProviderStat struct {
	Provider    string
	Attempts    int
	Established int
	// AvgEstablish is the mean time to an established tunnel.
	AvgEstablish time.Duration
}

// SuccessRate is Established / Attempts, or 0 without attempts.
func (p ProviderStat) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Established) / float64(p.Attempts)
}
