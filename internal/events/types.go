package events

import (
	"time"
)

// Event is the base interface for all run telemetry events.
type Event interface {
	EventType() string
	RunID() string
}

// Topic constants
const (
	TopicRun   = "run"
	TopicBatch = "batch"
)

// Event type constants
const (
	EventTypeRunStarted     = "run.started"
	EventTypeRunCompleted   = "run.completed"
	EventTypeRunFailed      = "run.failed"
	EventTypeRunProgress    = "run.progress"
	EventTypeStageStarted   = "batch.stage_started"
	EventTypeStageCompleted = "batch.stage_completed"
	EventTypeBatchCompleted = "batch.completed"
)

// RunStartedEvent is published when a pipeline run begins.
type RunStartedEvent struct {
	ID           string
	Pipeline     string
	TotalItems   int
	TotalBatches int
	Serial       bool // true when a caching stage forces serial execution
	Timestamp    time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) RunID() string     { return e.ID }

// RunCompletedEvent is published when a run resolves successfully.
type RunCompletedEvent struct {
	ID        string
	Items     int
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }
func (e RunCompletedEvent) RunID() string     { return e.ID }

// RunFailedEvent is published when a run aborts.
type RunFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFailedEvent) EventType() string { return EventTypeRunFailed }
func (e RunFailedEvent) RunID() string     { return e.ID }

// ProgressEvent carries a progress snapshot. Emitted before and after
// every stage and after every completed batch.
type ProgressEvent struct {
	ID              string
	BatchesComplete int
	TotalBatches    int
	StagesComplete  int
	TotalStages     int
	Elapsed         time.Duration
	BatchElapsed    time.Duration
	Timestamp       time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeRunProgress }
func (e ProgressEvent) RunID() string     { return e.ID }

// StageStartedEvent is published when a stage begins on a batch.
type StageStartedEvent struct {
	ID         string
	BatchIndex int
	StageIndex int
	Stage      string
	Timestamp  time.Time
}

func (e StageStartedEvent) EventType() string { return EventTypeStageStarted }
func (e StageStartedEvent) RunID() string     { return e.ID }

// StageCompletedEvent is published when a stage finishes on a batch.
type StageCompletedEvent struct {
	ID         string
	BatchIndex int
	StageIndex int
	Stage      string
	Duration   time.Duration
	Timestamp  time.Time
}

func (e StageCompletedEvent) EventType() string { return EventTypeStageCompleted }
func (e StageCompletedEvent) RunID() string     { return e.ID }

// BatchCompletedEvent is published when a batch has passed every stage
// and its records have been accepted in index order.
type BatchCompletedEvent struct {
	ID         string
	BatchIndex int
	Size       int
	Timestamp  time.Time
}

func (e BatchCompletedEvent) EventType() string { return EventTypeBatchCompleted }
func (e BatchCompletedEvent) RunID() string     { return e.ID }
