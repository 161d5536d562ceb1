package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		// Pre-create the file with restrictive permissions if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Debug("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Attempts ---

func (s *SQLiteStore) RecordAttempt(a *AttemptRecord) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO tunnel_attempts (provider, port, attempt, outcome, public_url, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Provider, a.Port, a.Attempt, a.Outcome, a.PublicURL, a.Error,
		a.Duration.Milliseconds(), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting attempt: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListAttempts(f AttemptFilter) ([]AttemptRecord, error) {
	query := "SELECT id, provider, port, attempt, outcome, public_url, error, duration_ms, created_at FROM tunnel_attempts WHERE 1=1"
	var args []any

	if f.Provider != "" {
		query += " AND provider = ?"
		args = append(args, f.Provider)
	}
	if f.Outcome != "" && f.Outcome != "all" {
		query += " AND outcome = ?"
		args = append(args, f.Outcome)
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}

	query += " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		var durationMS int64
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Provider, &a.Port, &a.Attempt, &a.Outcome,
			&a.PublicURL, &a.Error, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		a.CreatedAt = parseTime(createdAt)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ProviderStats counts established and failed attempts per provider.
// Outcomes without a provider (overall unavailability) are excluded.
func (s *SQLiteStore) ProviderStats(since time.Time) ([]ProviderStat, error) {
	rows, err := s.db.Query(`SELECT provider,
			COUNT(*),
			SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
			COALESCE(AVG(CASE WHEN outcome = ? THEN duration_ms END), 0)
		FROM tunnel_attempts
		WHERE provider != '' AND outcome IN (?, ?) AND created_at >= ?
		GROUP BY provider
		ORDER BY provider`,
		OutcomeEstablished, OutcomeEstablished, OutcomeEstablished, OutcomeFailed, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("computing provider stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []ProviderStat
	for rows.Next() {
		var p ProviderStat
		var avgMS float64
		if err := rows.Scan(&p.Provider, &p.Attempts, &p.Established, &avgMS); err != nil {
			return nil, fmt.Errorf("scanning provider stat: %w", err)
		}
		p.AvgEstablish = time.Duration(avgMS * float64(time.Millisecond))
		stats = append(stats, p)
	}
	return stats, rows.Err()
}

// --- Maintenance ---

// Cleanup deletes attempts recorded before olderThan.
func (s *SQLiteStore) Cleanup(olderThan time.Time) error {
	if _, err := s.db.Exec("DELETE FROM tunnel_attempts WHERE created_at < ?", formatTime(olderThan)); err != nil {
		return fmt.Errorf("cleaning attempts: %w", err)
	}
	return nil
}

// --- Helpers ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
