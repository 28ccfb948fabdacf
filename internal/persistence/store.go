// Package persistence records run history in SQLite: one row per run
// plus one row per completed batch, so past runs can be inspected from
// the CLI after the fact.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord is one pipeline run as stored.
type RunRecord struct {
	ID           string
	Pipeline     string
	TotalItems   int
	TotalBatches int
	Serial       bool
	Status       string
	Items        int // items actually produced
	Error        string
	CreatedAt    time.Time
	CompletedAt  time.Time // zero until the run resolves
}

// BatchRecord is one completed batch of a run.
type BatchRecord struct {
	RunID       string
	Index       int
	Size        int
	CompletedAt time.Time
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, run RunRecord) error
	CompleteRun(ctx context.Context, runID string, items int) error
	FailRun(ctx context.Context, runID string, runErr error) error
	RecordBatch(ctx context.Context, runID string, index, size int) error

	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context) ([]*RunRecord, error)
	ListBatches(ctx context.Context, runID string) ([]*BatchRecord, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys,
// and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// _pragma applies per connection, so foreign keys stay on across the
	// whole pool.
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
