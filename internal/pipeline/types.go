// Package pipeline implements the batch-pipeline engine: an ordered
// sequence of named stages driven across fixed-size batches of records,
// either concurrently through the scheduler or strictly serially when a
// stage's output must be visible to later batches.
package pipeline

import (
	"context"
	"time"
)

// Record is one partial or complete synthetic record: a mapping of
// field name to value.
type Record map[string]any

// Batch is an ordered sequence of records processed as a unit through
// every stage. A batch's identity is its zero-based index within the
// run; the index determines its position in the final result.
type Batch []Record

// Clone returns a shallow copy of the batch with copied records.
func (b Batch) Clone() Batch {
	out := make(Batch, len(b))
	for i, rec := range b {
		cp := make(Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// TransformFunc transforms a batch. It must return a batch of the same
// length; a mismatched length aborts the run with ErrBatchSize.
// Transforms must not retain or mutate shared state across batches.
type TransformFunc func(ctx context.Context, batch Batch, rc *RunContext) (Batch, error)

// Stage is one named transformation step in a pipeline definition.
// Stages are immutable once added. A stage with CacheOutput set appends
// every record it emits to the run's stage output cache, which forces
// the whole run into serial batch execution.
type Stage struct {
	Name        string
	Transform   TransformFunc
	CacheOutput bool
}

// RunContext is per-batch, read-only data exposed to stage transforms.
type RunContext struct {
	BatchIndex int         // zero-based index of this batch
	BatchCount int         // total number of batches in the run
	TotalCount int         // total target item count for the run
	Definition *Definition // the pipeline being run

	// Prior is the flattened concatenation (in stage-index order) of
	// every cached item from every batch completed before this batch
	// started. Empty unless some stage has CacheOutput set.
	Prior Batch
}

// ProgressSnapshot is an immutable progress value emitted before and
// after each stage and after each completed batch. BatchesComplete is
// monotonically non-decreasing within one run and never exceeds
// TotalBatches.
type ProgressSnapshot struct {
	BatchesComplete int
	TotalBatches    int
	StagesComplete  int // stages completed in the current batch
	TotalStages     int
	Elapsed         time.Duration // since the run started
	BatchElapsed    time.Duration // since the current batch started
}

// Sink persists the accumulated, hint-stripped result set. Writes
// happen after every completed batch and once more at run completion;
// they are best-effort and never change control flow.
type Sink interface {
	Write(ctx context.Context, records Batch) error
}
