package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := RunRecord{
		ID:           "run-1",
		Pipeline:     "customers",
		TotalItems:   50,
		TotalBatches: 5,
		Serial:       true,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Pipeline != "customers" {
		t.Errorf("expected pipeline customers, got %s", got.Pipeline)
	}
	if got.TotalItems != 50 || got.TotalBatches != 5 {
		t.Errorf("unexpected sizing: %d items, %d batches", got.TotalItems, got.TotalBatches)
	}
	if !got.Serial {
		t.Error("expected serial flag to round-trip")
	}
	if got.Status != StatusRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if !got.CompletedAt.IsZero() {
		t.Error("expected completed_at to be zero while running")
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(context.Background(), "nonexistent")
	if err == nil {
		t.Error("expected error for missing run")
	}
}

func TestCompleteRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, RunRecord{ID: "run-1", Pipeline: "p", TotalItems: 10, TotalBatches: 1}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if err := store.CompleteRun(ctx, "run-1", 10); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.Items != 10 {
		t.Errorf("expected 10 items, got %d", got.Items)
	}
	if got.CompletedAt.IsZero() {
		t.Error("expected completed_at to be set")
	}
}

func TestFailRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, RunRecord{ID: "run-1", Pipeline: "p", TotalItems: 10, TotalBatches: 1}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if err := store.FailRun(ctx, "run-1", errors.New("batch 0: service unavailable")); err != nil {
		t.Fatalf("failed to fail run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.Error != "batch 0: service unavailable" {
		t.Errorf("unexpected error message: %q", got.Error)
	}
}

func TestFinishMissingRun(t *testing.T) {
	store := newTestStore(t)

	if err := store.CompleteRun(context.Background(), "nonexistent", 0); err == nil {
		t.Error("expected error completing a missing run")
	}
}

func TestRecordAndListBatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, RunRecord{ID: "run-1", Pipeline: "p", TotalItems: 25, TotalBatches: 3}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	// Record out of order; listing must come back sorted by index.
	for _, b := range []struct{ index, size int }{{2, 5}, {0, 10}, {1, 10}} {
		if err := store.RecordBatch(ctx, "run-1", b.index, b.size); err != nil {
			t.Fatalf("failed to record batch %d: %v", b.index, err)
		}
	}

	batches, err := store.ListBatches(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list batches: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, b := range batches {
		if b.Index != i {
			t.Errorf("batch %d: expected index %d, got %d", i, i, b.Index)
		}
	}
	if batches[2].Size != 5 {
		t.Errorf("expected final batch size 5, got %d", batches[2].Size)
	}
}

func TestRecordBatchUnknownRun(t *testing.T) {
	store := newTestStore(t)

	// Foreign keys are on, so a batch without a run must be rejected.
	if err := store.RecordBatch(context.Background(), "nonexistent", 0, 10); err == nil {
		t.Error("expected foreign key violation for unknown run")
	}
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.CreateRun(ctx, RunRecord{ID: id, Pipeline: "p", TotalItems: 1, TotalBatches: 1}); err != nil {
			t.Fatalf("failed to create %s: %v", id, err)
		}
	}
	if err := store.CompleteRun(ctx, "run-b", 1); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}

	statuses := make(map[string]string)
	for _, r := range runs {
		statuses[r.ID] = r.Status
	}
	if statuses["run-b"] != StatusCompleted {
		t.Errorf("expected run-b completed, got %s", statuses["run-b"])
	}
	if statuses["run-a"] != StatusRunning {
		t.Errorf("expected run-a running, got %s", statuses["run-a"])
	}
}

func TestSQLiteStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history", "runs.db")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.CreateRun(ctx, RunRecord{ID: "run-1", Pipeline: "p", TotalItems: 1, TotalBatches: 1}); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// Reopen and confirm the run survived.
	store, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run after reopen: %v", err)
	}
	if got.Pipeline != "p" {
		t.Errorf("unexpected pipeline after reopen: %s", got.Pipeline)
	}
}
