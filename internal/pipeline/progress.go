package pipeline

import (
	"sync"
	"time"

	"github.com/mbleigh/genthetic/internal/events"
)

// progressTracker owns all progress state for one run and emits
// snapshots to the observer callback and the event bus. All mutation
// goes through its mutex so snapshot delivery is ordered and
// BatchesComplete is monotonically non-decreasing as observed.
//
// The callback runs while the tracker lock is held; observers must not
// call back into the run.
type progressTracker struct {
	mu sync.Mutex

	runID        string
	totalBatches int
	totalStages  int

	batchesComplete int
	stagesComplete  int // in the current batch
	runStart        time.Time
	batchStart      time.Time

	onProgress func(ProgressSnapshot)
	bus        *events.Bus
}

func newProgressTracker(runID string, totalBatches, totalStages int, onProgress func(ProgressSnapshot), bus *events.Bus) *progressTracker {
	now := time.Now()
	return &progressTracker{
		runID:        runID,
		totalBatches: totalBatches,
		totalStages:  totalStages,
		runStart:     now,
		batchStart:   now,
		onProgress:   onProgress,
		bus:          bus,
	}
}

// stageStarted records that a stage is about to run on a batch and
// emits a snapshot. The first stage of a batch resets the current-batch
// clock and stage counter.
func (p *progressTracker) stageStarted(stageIndex int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stageIndex == 0 {
		p.batchStart = time.Now()
		p.stagesComplete = 0
	}
	p.emitLocked()
}

// stageCompleted records a finished stage and emits a snapshot.
func (p *progressTracker) stageCompleted(stageIndex int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stagesComplete = stageIndex + 1
	p.emitLocked()
}

// batchCompleted records a batch accepted in index order and emits a
// snapshot.
func (p *progressTracker) batchCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batchesComplete++
	p.emitLocked()
}

// emitLocked delivers the current snapshot. Caller must hold p.mu.
func (p *progressTracker) emitLocked() {
	now := time.Now()
	snap := ProgressSnapshot{
		BatchesComplete: p.batchesComplete,
		TotalBatches:    p.totalBatches,
		StagesComplete:  p.stagesComplete,
		TotalStages:     p.totalStages,
		Elapsed:         now.Sub(p.runStart),
		BatchElapsed:    now.Sub(p.batchStart),
	}

	if p.onProgress != nil {
		p.onProgress(snap)
	}
	if p.bus != nil {
		p.bus.Publish(events.TopicRun, events.ProgressEvent{
			ID:              p.runID,
			BatchesComplete: snap.BatchesComplete,
			TotalBatches:    snap.TotalBatches,
			StagesComplete:  snap.StagesComplete,
			TotalStages:     snap.TotalStages,
			Elapsed:         snap.Elapsed,
			BatchElapsed:    snap.BatchElapsed,
			Timestamp:       now,
		})
	}
}
