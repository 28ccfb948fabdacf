package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mbleigh/genthetic/internal/events"
	"github.com/mbleigh/genthetic/internal/scheduler"
)

// ErrBatchSize is the hard error for a stage transform that returned a
// batch whose length does not match its input.
var ErrBatchSize = errors.New("stage returned batch of mismatched length")

// RunOptions configures one pipeline run.
type RunOptions struct {
	// Exactly one of ItemCount / BatchCount may be set. If neither is,
	// the run produces one batch of the definition's default size.
	ItemCount  int
	BatchCount int

	// Scheduler tuning for parallel mode. Zero values select the
	// scheduler defaults (concurrency 5, 3 retries, 200ms base delay).
	Concurrency int
	MaxRetries  int
	BaseDelay   time.Duration

	Sink       Sink                       // optional; accumulated results after every batch
	OnProgress func(ProgressSnapshot)     // optional synchronous progress observer
	OnBatch    func(index int, batch Batch) // optional synchronous per-batch observer
	OnRetry    func(attempt int, err error) // optional, parallel mode only
	Bus        *events.Bus                // optional telemetry bus
}

// Run is the handle for an in-flight pipeline run.
type Run struct {
	id           string
	serial       bool
	totalCount   int
	totalBatches int

	done    chan struct{}
	results Batch
	err     error
}

// ID returns the run's unique identifier.
func (r *Run) ID() string { return r.id }

// Serial reports whether the run executes batches strictly in order.
func (r *Run) Serial() bool { return r.serial }

// TotalItems returns the run's target item count.
func (r *Run) TotalItems() int { return r.totalCount }

// TotalBatches returns the run's batch count.
func (r *Run) TotalBatches() int { return r.totalBatches }

// Complete blocks until the run resolves and returns the ordered,
// hint-stripped results, or the first unrecovered batch failure.
func (r *Run) Complete(ctx context.Context) (Batch, error) {
	select {
	case <-r.done:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runner drives a single run. Batch dispatch and result consumption
// happen on one coordinating goroutine; in parallel mode the stage
// transforms themselves run on scheduler task goroutines.
type runner struct {
	def    *Definition
	opts   RunOptions
	run    *Run
	stages []Stage

	batchSize    int
	totalCount   int
	totalBatches int

	// cache maps stage index to that stage's accumulated output.
	// Append-only; populated only in serial mode, where exactly one
	// batch is in flight at a time.
	cache map[int]Batch

	results  Batch
	progress *progressTracker
	start    time.Time
}

// Start launches a run of the given definition and returns its handle.
// The definition's stage list freezes on the first call.
func Start(ctx context.Context, def *Definition, opts RunOptions) (*Run, error) {
	if def == nil {
		return nil, errors.New("pipeline: nil definition")
	}
	if opts.ItemCount < 0 || opts.BatchCount < 0 {
		return nil, errors.New("pipeline: item and batch counts must be non-negative")
	}
	if opts.ItemCount > 0 && opts.BatchCount > 0 {
		return nil, errors.New("pipeline: set at most one of ItemCount and BatchCount")
	}

	batchSize := def.BatchSize()
	var totalCount, totalBatches int
	switch {
	case opts.BatchCount > 0:
		totalBatches = opts.BatchCount
		totalCount = opts.BatchCount * batchSize
	case opts.ItemCount > 0:
		totalCount = opts.ItemCount
		totalBatches = (opts.ItemCount + batchSize - 1) / batchSize
	default:
		totalCount = batchSize
		totalBatches = 1
	}

	def.freeze()

	run := &Run{
		id:           uuid.New().String(),
		serial:       def.cachesOutput(),
		totalCount:   totalCount,
		totalBatches: totalBatches,
		done:         make(chan struct{}),
	}

	r := &runner{
		def:          def,
		opts:         opts,
		run:          run,
		stages:       def.Stages(),
		batchSize:    batchSize,
		totalCount:   totalCount,
		totalBatches: totalBatches,
		cache:        make(map[int]Batch),
		start:        time.Now(),
	}
	r.progress = newProgressTracker(run.id, totalBatches, len(r.stages), opts.OnProgress, opts.Bus)

	go r.execute(ctx)

	return run, nil
}

// execute drives the run to completion or failure.
func (r *runner) execute(ctx context.Context) {
	r.publishRun(events.RunStartedEvent{
		ID:           r.run.id,
		Pipeline:     r.def.Name(),
		TotalItems:   r.totalCount,
		TotalBatches: r.totalBatches,
		Serial:       r.run.serial,
		Timestamp:    time.Now(),
	})

	var err error
	if r.run.serial {
		err = r.runSerial(ctx)
	} else {
		err = r.runParallel(ctx)
	}

	if err != nil {
		r.publishRun(events.RunFailedEvent{
			ID:        r.run.id,
			Err:       err,
			Duration:  time.Since(r.start),
			Timestamp: time.Now(),
		})
		r.run.err = err
		close(r.run.done)
		return
	}

	// Final persistence write and resolution use the stripped results.
	stripped := StripHints(r.results)
	r.writeSink(ctx, stripped)

	r.publishRun(events.RunCompletedEvent{
		ID:        r.run.id,
		Items:     len(stripped),
		Duration:  time.Since(r.start),
		Timestamp: time.Now(),
	})
	r.run.results = stripped
	close(r.run.done)
}

// runSerial executes batches one at a time in ascending index order.
// Required whenever a stage caches output: later batches must see the
// cache contents of all earlier batches. There is no retry here; a
// stage failure aborts the run immediately.
func (r *runner) runSerial(ctx context.Context) error {
	for idx := 0; idx < r.totalBatches; idx++ {
		batch, err := r.processBatch(ctx, idx)
		if err != nil {
			return fmt.Errorf("batch %d: %w", idx, err)
		}
		r.acceptBatch(ctx, idx, batch)
	}
	return nil
}

// runParallel submits every batch to the scheduler at once and consumes
// results strictly in ascending index order, so the output sequence
// matches batch index order regardless of completion order. A batch
// failure (after the scheduler's retries) aborts the run when the
// consumption loop reaches its index; later results are discarded.
func (r *runner) runParallel(ctx context.Context) error {
	sched := scheduler.New[Batch](scheduler.Options{
		Concurrency: r.opts.Concurrency,
		MaxRetries:  r.opts.MaxRetries,
		BaseDelay:   r.opts.BaseDelay,
		OnRetry:     r.opts.OnRetry,
	})
	defer sched.Close()

	handles := make([]*scheduler.Handle[Batch], r.totalBatches)
	for idx := range handles {
		i := idx
		handles[idx] = sched.Submit(ctx, func(ctx context.Context) (Batch, error) {
			return r.processBatch(ctx, i)
		})
	}

	for idx, h := range handles {
		batch, err := h.Wait(ctx)
		if err != nil {
			return fmt.Errorf("batch %d: %w", idx, err)
		}
		r.acceptBatch(ctx, idx, batch)
	}
	return nil
}

// processBatch runs one batch through every stage in definition order.
func (r *runner) processBatch(ctx context.Context, idx int) (Batch, error) {
	size := r.batchSize
	if idx == r.totalBatches-1 {
		size = r.totalCount - (r.totalBatches-1)*r.batchSize
	}

	batch := make(Batch, size)
	for i := range batch {
		batch[i] = make(Record)
	}

	rc := &RunContext{
		BatchIndex: idx,
		BatchCount: r.totalBatches,
		TotalCount: r.totalCount,
		Definition: r.def,
		Prior:      r.flattenCache(),
	}

	for si, stage := range r.stages {
		r.progress.stageStarted(si)
		r.publishBatch(events.StageStartedEvent{
			ID:         r.run.id,
			BatchIndex: idx,
			StageIndex: si,
			Stage:      stage.Name,
			Timestamp:  time.Now(),
		})

		stageStart := time.Now()
		out, err := stage.Transform(ctx, batch, rc)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", stage.Name, err)
		}
		if len(out) != len(batch) {
			return nil, fmt.Errorf("stage %q: %w: got %d records, want %d", stage.Name, ErrBatchSize, len(out), len(batch))
		}
		batch = out

		if stage.CacheOutput {
			r.cache[si] = append(r.cache[si], batch...)
		}

		r.progress.stageCompleted(si)
		r.publishBatch(events.StageCompletedEvent{
			ID:         r.run.id,
			BatchIndex: idx,
			StageIndex: si,
			Stage:      stage.Name,
			Duration:   time.Since(stageStart),
			Timestamp:  time.Now(),
		})
	}

	return batch, nil
}

// acceptBatch folds a completed batch into the accumulated results, in
// index order, and performs the per-batch bookkeeping: batch observer,
// best-effort sink write of the stripped accumulated results, and a
// progress emission with BatchesComplete incremented.
func (r *runner) acceptBatch(ctx context.Context, idx int, batch Batch) {
	r.results = append(r.results, batch...)

	if r.opts.OnBatch != nil {
		r.opts.OnBatch(idx, batch)
	}

	r.writeSink(ctx, StripHints(r.results))

	r.progress.batchCompleted()
	r.publishBatch(events.BatchCompletedEvent{
		ID:         r.run.id,
		BatchIndex: idx,
		Size:       len(batch),
		Timestamp:  time.Now(),
	})
}

// flattenCache snapshots the stage output cache as one batch, in stage
// index order. Returns nil when no stage caches output.
func (r *runner) flattenCache() Batch {
	var prior Batch
	for si := range r.stages {
		if cached, ok := r.cache[si]; ok {
			prior = append(prior, cached...)
		}
	}
	return prior
}

// writeSink persists records to the configured sink, if any. Sink
// failures are logged and never abort the run.
func (r *runner) writeSink(ctx context.Context, records Batch) {
	if r.opts.Sink == nil {
		return
	}
	if err := r.opts.Sink.Write(ctx, records); err != nil {
		log.Printf("WARNING: sink write failed for run %s: %v", r.run.id, err)
	}
}

func (r *runner) publishRun(e events.Event) {
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(events.TopicRun, e)
	}
}

func (r *runner) publishBatch(e events.Event) {
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(events.TopicBatch, e)
	}
}
