// Package budget provides the cost ledger for Patchwright.
//
// This file implements the durable daily-spend store, backed by SQLite so
// the counter survives process restarts within the same calendar day.
//
// Import rules:
//   - CAN import: internal/errors, std lib
//   - MUST NOT import: internal/run, internal/cli
package budget

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// DayKeyFormat is the calendar-date key format for daily spend rows.
// Days roll over at UTC midnight; this is the documented reset boundary.
const DayKeyFormat = "2006-01-02"

// DayKey returns the daily-spend key for the given instant.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyFormat)
}

// DailyStore persists per-day spend totals.
type DailyStore interface {
	// Spend returns the committed spend for the given day key.
	// Days with no recorded spend return 0.
	Spend(ctx context.Context, day string) (float64, error)

	// Add atomically increments the committed spend for the day and
	// returns the new total.
	Add(ctx context.Context, day string, amount float64) (float64, error)

	// Close releases the underlying storage.
	Close() error
}

// SQLiteStore implements DailyStore using a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const dailySpendSchema = `
CREATE TABLE IF NOT EXISTS daily_spend (
	day        TEXT PRIMARY KEY,
	spend      REAL NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);`

// OpenSQLiteStore opens (creating if necessary) the daily-spend database at
// the given path. The parent directory is created if missing.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path %w", pwerrors.ErrEmptyValue)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if _, err := db.Exec(dailySpendSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running ledger migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Spend returns the committed spend for the given day key.
func (s *SQLiteStore) Spend(ctx context.Context, day string) (float64, error) {
	if s.db == nil {
		return 0, pwerrors.ErrLedgerClosed
	}

	var spend float64
	err := s.db.QueryRowContext(ctx,
		`SELECT spend FROM daily_spend WHERE day = ?`, day).Scan(&spend)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read daily spend: %w", err)
	}
	return spend, nil
}

// Add atomically increments the committed spend for the day.
func (s *SQLiteStore) Add(ctx context.Context, day string, amount float64) (float64, error) {
	if s.db == nil {
		return 0, pwerrors.ErrLedgerClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_spend (day, spend, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			spend = spend + excluded.spend,
			updated_at = excluded.updated_at
	`, day, amount, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record daily spend: %w", err)
	}

	return s.Spend(ctx, day)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// MemoryStore implements DailyStore in memory, for tests.
type MemoryStore struct {
	spend map[string]float64
}

// NewMemoryStore creates an empty in-memory daily store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{spend: make(map[string]float64)}
}

// Spend returns the in-memory spend for the day.
func (s *MemoryStore) Spend(_ context.Context, day string) (float64, error) {
	return s.spend[day], nil
}

// Add increments the in-memory spend for the day.
func (s *MemoryStore) Add(_ context.Context, day string, amount float64) (float64, error) {
	s.spend[day] += amount
	return s.spend[day], nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
