package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateRun inserts a new run in status "running".
func (s *SQLiteStore) CreateRun(ctx context.Context, run RunRecord) error {
	serial := 0
	if run.Serial {
		serial = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, pipeline, total_items, total_batches, serial, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, run.ID, run.Pipeline, run.TotalItems, run.TotalBatches, serial, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// CompleteRun marks a run as completed with the produced item count.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, items int) error {
	return s.finishRun(ctx, runID, StatusCompleted, items, "")
}

// FailRun marks a run as failed with its error message.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.finishRun(ctx, runID, StatusFailed, 0, msg)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID, status string, items int, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, items = ?, error = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, items, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordBatch inserts one completed batch row for a run.
func (s *SQLiteStore) RecordBatch(ctx context.Context, runID string, index, size int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_batches (run_id, batch_index, size, completed_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, runID, index, size)
	if err != nil {
		return fmt.Errorf("failed to insert batch %d for run %s: %w", index, runID, err)
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline, total_items, total_batches, serial, status, items, COALESCE(error, ''), created_at, completed_at
		FROM runs WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline, total_items, total_batches, serial, status, items, COALESCE(error, ''), created_at, completed_at
		FROM runs ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListBatches returns a run's completed batches in index order.
func (s *SQLiteStore) ListBatches(ctx context.Context, runID string) ([]*BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, batch_index, size, completed_at
		FROM run_batches WHERE run_id = ? ORDER BY batch_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*BatchRecord
	for rows.Next() {
		var b BatchRecord
		if err := rows.Scan(&b.RunID, &b.Index, &b.Size, &b.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var run RunRecord
	var serial int
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.Pipeline, &run.TotalItems, &run.TotalBatches, &serial,
		&run.Status, &run.Items, &run.Error, &run.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	run.Serial = serial != 0
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	return &run, nil
}
