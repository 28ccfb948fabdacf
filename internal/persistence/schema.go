package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		total_items INTEGER NOT NULL,
		total_batches INTEGER NOT NULL,
		serial INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		items INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS run_batches (
		run_id TEXT NOT NULL,
		batch_index INTEGER NOT NULL,
		size INTEGER NOT NULL,
		completed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, batch_index),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_batches_run_id ON run_batches(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
