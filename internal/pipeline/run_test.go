package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// indexStamp returns a stage that writes the batch index and the global
// item index into every record.
func indexStamp() TransformFunc {
	return func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
		for i, rec := range batch {
			rec["batch"] = rc.BatchIndex
			rec["item"] = rc.BatchIndex*rc.Definition.BatchSize() + i
		}
		return batch, nil
	}
}

func TestRun_ResultsOrderedByBatchIndex(t *testing.T) {
	// Later batches finish first (sleep decreases with index); results
	// must still come back in ascending batch index order.
	def := NewDefinition("ordered", 4).
		AddTransform("stamp", indexStamp()).
		AddTransform("shuffle-completion", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			time.Sleep(time.Duration(rc.BatchCount-rc.BatchIndex) * 5 * time.Millisecond)
			return batch, nil
		})

	run, err := Start(context.Background(), def, RunOptions{ItemCount: 22, Concurrency: 8})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	results, err := run.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if len(results) != 22 {
		t.Fatalf("expected 22 results, got %d", len(results))
	}
	for i, rec := range results {
		wantBatch := i / 4
		if rec["batch"] != wantBatch {
			t.Errorf("results[%d]: expected batch %d, got %v", i, wantBatch, rec["batch"])
		}
		if rec["item"] != i {
			t.Errorf("results[%d]: expected item %d, got %v", i, i, rec["item"])
		}
	}
}

func TestRun_BatchSizing(t *testing.T) {
	sizes := func(itemCount, batchCount int) []int {
		var mu sync.Mutex
		var got []int
		def := NewDefinition("sizing", 10).
			AddTransform("record-size", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
				mu.Lock()
				got = append(got, len(batch))
				mu.Unlock()
				return batch, nil
			})
		run, err := Start(context.Background(), def, RunOptions{ItemCount: itemCount, BatchCount: batchCount, Concurrency: 1})
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := run.Complete(context.Background()); err != nil {
			t.Fatalf("complete: %v", err)
		}
		return got
	}

	if got := sizes(25, 0); len(got) != 3 || got[0] != 10 || got[1] != 10 || got[2] != 5 {
		t.Errorf("ItemCount=25: expected [10 10 5], got %v", got)
	}
	if got := sizes(0, 3); len(got) != 3 || got[0] != 10 || got[2] != 10 {
		t.Errorf("BatchCount=3: expected [10 10 10], got %v", got)
	}
	if got := sizes(0, 0); len(got) != 1 || got[0] != 10 {
		t.Errorf("defaults: expected one full batch, got %v", got)
	}
}

func TestRun_RejectsConflictingCounts(t *testing.T) {
	def := NewDefinition("conflict", 10).AddTransform("noop", indexStamp())
	if _, err := Start(context.Background(), def, RunOptions{ItemCount: 5, BatchCount: 2}); err == nil {
		t.Fatal("expected error when both ItemCount and BatchCount are set")
	}
}

func TestRun_ParallelFasterThanSerial(t *testing.T) {
	const batches = 10
	const stageDuration = 30 * time.Millisecond

	def := NewDefinition("timing", 1).
		AddTransform("sleep", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			time.Sleep(stageDuration)
			return batch, nil
		})

	start := time.Now()
	run, err := Start(context.Background(), def, RunOptions{BatchCount: batches, Concurrency: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := run.Complete(context.Background()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	elapsed := time.Since(start)

	// ceil(10/5) * 30ms = 60ms ideal; must beat the serial 300ms by a
	// wide margin.
	if elapsed >= batches*stageDuration/2 {
		t.Errorf("parallel run took %v, expected well under %v", elapsed, batches*stageDuration)
	}
}

func TestRun_FirstWaveOfBatchesStartsFirst(t *testing.T) {
	// 10 single-item batches at concurrency 5: every batch in the first
	// wave must begin before any batch in the second wave.
	var mu sync.Mutex
	var startOrder []int

	def := NewDefinition("waves", 1).
		AddTransform("record-start", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			mu.Lock()
			startOrder = append(startOrder, rc.BatchIndex)
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			return batch, nil
		})

	run, err := Start(context.Background(), def, RunOptions{BatchCount: 10, Concurrency: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := run.Complete(context.Background()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(startOrder) != 10 {
		t.Fatalf("expected 10 batch starts, got %d", len(startOrder))
	}
	for _, idx := range startOrder[:5] {
		if idx >= 5 {
			t.Errorf("batch %d from the second wave started among the first 5: %v", idx, startOrder)
		}
	}
}

func TestRun_CachingStageForcesSerialOrder(t *testing.T) {
	// With a caching stage, batch N+1 must not start before batch N's
	// last stage completes, and each batch must see all earlier cached
	// output in its RunContext.
	type span struct {
		batch int
		start time.Time
		end   time.Time
	}
	var mu sync.Mutex
	var spans []span
	var priorSizes []int

	def := NewDefinition("cached", 3).
		AddCachingTransform("emit", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			begin := time.Now()
			mu.Lock()
			priorSizes = append(priorSizes, len(rc.Prior))
			mu.Unlock()
			for i, rec := range batch {
				rec["id"] = rc.BatchIndex*3 + i
			}
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			spans = append(spans, span{batch: rc.BatchIndex, start: begin, end: time.Now()})
			mu.Unlock()
			return batch, nil
		})

	run, err := Start(context.Background(), def, RunOptions{BatchCount: 4, Concurrency: 8})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !run.Serial() {
		t.Error("expected serial mode when a stage caches output")
	}
	results, err := run.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(results) != 12 {
		t.Fatalf("expected 12 results, got %d", len(results))
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(spans); i++ {
		if spans[i].batch != spans[i-1].batch+1 {
			t.Fatalf("batches executed out of order: %+v", spans)
		}
		if spans[i].start.Before(spans[i-1].end) {
			t.Errorf("batch %d started before batch %d finished", spans[i].batch, spans[i-1].batch)
		}
	}

	// Batch i sees exactly i*3 cached items from earlier batches.
	for i, size := range priorSizes {
		if size != i*3 {
			t.Errorf("batch %d: expected %d prior items, got %d", i, i*3, size)
		}
	}
}

func TestRun_ProgressMonotonic(t *testing.T) {
	var mu sync.Mutex
	var snaps []ProgressSnapshot

	def := NewDefinition("progress", 2).
		AddTransform("a", indexStamp()).
		AddTransform("b", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			return batch, nil
		})

	run, err := Start(context.Background(), def, RunOptions{
		BatchCount:  3,
		Concurrency: 4,
		OnProgress: func(s ProgressSnapshot) {
			mu.Lock()
			snaps = append(snaps, s)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := run.Complete(context.Background()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(snaps) == 0 {
		t.Fatal("expected progress snapshots")
	}
	prev := 0
	for i, s := range snaps {
		if s.BatchesComplete < prev {
			t.Errorf("snapshot %d: BatchesComplete decreased from %d to %d", i, prev, s.BatchesComplete)
		}
		if s.BatchesComplete > s.TotalBatches {
			t.Errorf("snapshot %d: BatchesComplete %d exceeds total %d", i, s.BatchesComplete, s.TotalBatches)
		}
		prev = s.BatchesComplete
	}

	final := snaps[len(snaps)-1]
	if final.BatchesComplete != 3 {
		t.Errorf("final snapshot: expected 3 batches complete, got %d", final.BatchesComplete)
	}
	if final.StagesComplete != final.TotalStages {
		t.Errorf("final snapshot: expected %d stages complete, got %d", final.TotalStages, final.StagesComplete)
	}
}

func TestRun_ParallelRetriesBatchFailure(t *testing.T) {
	// Batch 2 fails twice, then succeeds. In parallel mode the
	// scheduler's retry makes the run succeed anyway.
	var failures atomic.Int32
	var retries atomic.Int32

	def := NewDefinition("flaky", 2).
		AddTransform("sometimes", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			if rc.BatchIndex == 2 && failures.Add(1) <= 2 {
				return nil, errors.New("transient generation failure")
			}
			for i, rec := range batch {
				rec["i"] = i
			}
			return batch, nil
		})

	run, err := Start(context.Background(), def, RunOptions{
		BatchCount:  4,
		Concurrency: 2,
		MaxRetries:  3,
		BaseDelay:   2 * time.Millisecond,
		OnRetry:     func(attempt int, err error) { retries.Add(1) },
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	results, err := run.Complete(context.Background())
	if err != nil {
		t.Fatalf("expected retries to recover the run, got: %v", err)
	}
	if len(results) != 8 {
		t.Errorf("expected 8 results, got %d", len(results))
	}
	if retries.Load() != 2 {
		t.Errorf("expected 2 retries, got %d", retries.Load())
	}
}

func TestRun_ParallelRetryExhaustedAbortsAtIndex(t *testing.T) {
	def := NewDefinition("doomed", 1).
		AddTransform("fail-batch-1", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			if rc.BatchIndex == 1 {
				return nil, errors.New("permanent failure")
			}
			return batch, nil
		})

	run, err := Start(context.Background(), def, RunOptions{
		BatchCount: 4,
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = run.Complete(context.Background())
	if err == nil {
		t.Fatal("expected run failure")
	}
	if want := "batch 1"; !strings.Contains(err.Error(), want) {
		t.Errorf("error should name the failing batch: %v", err)
	}
	if !strings.Contains(err.Error(), "permanent failure") {
		t.Errorf("error should carry the underlying cause: %v", err)
	}
}

func TestRun_SerialFailureHasNoRetry(t *testing.T) {
	var attempts atomic.Int32

	def := NewDefinition("serial-fail", 2).
		AddCachingTransform("boom", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			attempts.Add(1)
			return nil, errors.New("hard failure")
		})

	run, err := Start(context.Background(), def, RunOptions{BatchCount: 3, MaxRetries: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = run.Complete(context.Background())
	if err == nil {
		t.Fatal("expected run failure")
	}
	if attempts.Load() != 1 {
		t.Errorf("serial mode must not retry: expected 1 attempt, got %d", attempts.Load())
	}
}

func TestRun_StageLengthMismatchIsHardError(t *testing.T) {
	def := NewDefinition("short", 5).
		AddTransform("drop-one", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			return batch[:len(batch)-1], nil
		})

	run, err := Start(context.Background(), def, RunOptions{MaxRetries: 1, BaseDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = run.Complete(context.Background())
	if !errors.Is(err, ErrBatchSize) {
		t.Errorf("expected ErrBatchSize, got: %v", err)
	}
}

// memorySink records every write it receives.
type memorySink struct {
	mu     sync.Mutex
	writes []Batch
}

func (m *memorySink) Write(ctx context.Context, records Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, records.Clone())
	return nil
}

func TestRun_SinkReceivesStrippedAccumulatedResults(t *testing.T) {
	sink := &memorySink{}

	def := NewDefinition("sinky", 2).
		AddTransform("hint", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			out := make(Batch, len(batch))
			for i, rec := range batch {
				rec["value"] = rc.BatchIndex
				out[i] = WithHint(rec, "steer the generator")
			}
			return out, nil
		})

	run, err := Start(context.Background(), def, RunOptions{BatchCount: 3, Concurrency: 1, Sink: sink})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	results, err := run.Complete(context.Background())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	for i, rec := range results {
		if _, ok := Hint(rec); ok {
			t.Errorf("results[%d] still carries a hint", i)
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// One write per batch plus the final write.
	if len(sink.writes) != 4 {
		t.Fatalf("expected 4 sink writes, got %d", len(sink.writes))
	}
	for w, batch := range sink.writes[:3] {
		if len(batch) != (w+1)*2 {
			t.Errorf("write %d: expected %d accumulated records, got %d", w, (w+1)*2, len(batch))
		}
	}
	for w, batch := range sink.writes {
		for i, rec := range batch {
			if _, ok := rec[HintKey]; ok {
				t.Errorf("write %d record %d: hint not stripped before persistence", w, i)
			}
		}
	}
}

func TestRun_BatchObserverOrder(t *testing.T) {
	var mu sync.Mutex
	var observed []int

	def := NewDefinition("observe", 1).
		AddTransform("slow-early", func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error) {
			time.Sleep(time.Duration(5-rc.BatchIndex) * 5 * time.Millisecond)
			return batch, nil
		})

	run, err := Start(context.Background(), def, RunOptions{
		BatchCount:  5,
		Concurrency: 5,
		OnBatch: func(index int, batch Batch) {
			mu.Lock()
			observed = append(observed, index)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := run.Complete(context.Background()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, idx := range observed {
		if idx != i {
			t.Fatalf("batch observer order: expected ascending indices, got %v", observed)
		}
	}
}

