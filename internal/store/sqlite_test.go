package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/tunnelmock/internal/notify"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_Migration_IsIdempotentOnReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "tunnelmock.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordAttempt(&AttemptRecord{Provider: "serveo", Port: 8001, Outcome: OutcomeFailed}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	attempts, err := s.ListAttempts(AttemptFilter{})
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSQLiteStore_RecordAndListAttempts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &AttemptRecord{
		Provider:  "pinggy",
		Port:      8123,
		Attempt:   2,
		Outcome:   OutcomeEstablished,
		PublicURL: "https://abc.a.free.pinggy.link",
		Duration:  1500 * time.Millisecond,
		CreatedAt: base,
	}
	require.NoError(t, s.RecordAttempt(rec))
	assert.NotZero(t, rec.ID)

	require.NoError(t, s.RecordAttempt(&AttemptRecord{Provider: "serveo", Port: 8123, Attempt: 1, Outcome: OutcomeFailed, Error: "probe failed", CreatedAt: base.Add(-time.Second)}))

	got, err := s.ListAttempts(AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pinggy", got[0].Provider)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.True(t, base.Equal(got[0].CreatedAt))
	assert.Equal(t, "probe failed", got[1].Error)
}

func TestSQLiteStore_ListAttempts_Filters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	for i, r := range []AttemptRecord{
		{Provider: "serveo", Outcome: OutcomeFailed, CreatedAt: now.Add(-2 * time.Hour)},
		{Provider: "serveo", Outcome: OutcomeEstablished, CreatedAt: now.Add(-time.Minute)},
		{Provider: "pinggy", Outcome: OutcomeFailed, CreatedAt: now},
	} {
		r.Port = 8000 + i
		require.NoError(t, s.RecordAttempt(&r))
	}

	byProvider, err := s.ListAttempts(AttemptFilter{Provider: "serveo"})
	require.NoError(t, err)
	assert.Len(t, byProvider, 2)

	byOutcome, err := s.ListAttempts(AttemptFilter{Outcome: OutcomeFailed})
	require.NoError(t, err)
	assert.Len(t, byOutcome, 2)

	recent, err := s.ListAttempts(AttemptFilter{Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := s.ListAttempts(AttemptFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "pinggy", limited[0].Provider)
}

func TestSQLiteStore_ProviderStats(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, r := range []AttemptRecord{
		{Provider: "serveo", Outcome: OutcomeFailed},
		{Provider: "serveo", Outcome: OutcomeEstablished, Duration: 2 * time.Second},
		{Provider: "serveo", Outcome: OutcomeEstablished, Duration: 4 * time.Second},
		{Provider: "serveo", Outcome: OutcomeClosed},
		{Provider: "pinggy", Outcome: OutcomeFailed},
		{Outcome: OutcomeUnavailable},
	} {
		require.NoError(t, s.RecordAttempt(&r))
	}

	stats, err := s.ProviderStats(time.Time{})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "pinggy", stats[0].Provider)
	assert.Equal(t, 1, stats[0].Attempts)
	assert.Zero(t, stats[0].SuccessRate())

	assert.Equal(t, "serveo", stats[1].Provider)
	assert.Equal(t, 3, stats[1].Attempts)
	assert.Equal(t, 2, stats[1].Established)
	assert.Equal(t, 3*time.Second, stats[1].AvgEstablish)
	assert.InDelta(t, 2.0/3.0, stats[1].SuccessRate(), 0.001)
}

func TestSQLiteStore_Cleanup_DeletesOldAttempts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.RecordAttempt(&AttemptRecord{Provider: "serveo", Outcome: OutcomeFailed, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.RecordAttempt(&AttemptRecord{Provider: "serveo", Outcome: OutcomeFailed, CreatedAt: now}))

	require.NoError(t, s.Cleanup(now.Add(-24*time.Hour)))

	got, err := s.ListAttempts(AttemptFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestJournal_RecordsOutcomesOnly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	j := NewJournal(s)

	j.Notify(notify.Event{Type: notify.TunnelAttempt, Provider: "serveo", Port: 8001, Attempt: 1})
	j.Notify(notify.Event{Type: notify.TunnelFailed, Provider: "serveo", Port: 8001, Attempt: 1, Message: "probe failed"})
	j.Notify(notify.Event{Type: notify.TunnelEstablished, Provider: "pinggy", Port: 8001, Attempt: 2, PublicURL: "https://x.a.free.pinggy.link"})

	got, err := s.ListAttempts(AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	outcomes := map[string]AttemptRecord{}
	for _, a := range got {
		outcomes[a.Outcome] = a
	}
	assert.Equal(t, "probe failed", outcomes[OutcomeFailed].Error)
	assert.Equal(t, "https://x.a.free.pinggy.link", outcomes[OutcomeEstablished].PublicURL)
	assert.Empty(t, outcomes[OutcomeEstablished].Error)
}
