// Package scheduler provides a bounded-concurrency task runner with
// automatic retry and exponential backoff.
//
// Tasks are queued FIFO and at most Options.Concurrency run at once.
// A failed task is re-queued at the HEAD of the queue after a backoff
// delay, so retried work takes priority over work that has never
// started. Once a task has exhausted its retries, its handle resolves
// with a RetryExhaustedError wrapping the last underlying error.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default tuning values, used when the corresponding Options field is zero.
const (
	DefaultConcurrency = 5
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 200 * time.Millisecond
)

// Task is an asynchronous unit of work producing a value of type T.
type Task[T any] func(ctx context.Context) (T, error)

// Options configures a Scheduler.
type Options struct {
	Concurrency int           // Max tasks running at once (default 5)
	MaxRetries  int           // Retries per task after the first attempt (default 3)
	BaseDelay   time.Duration // Backoff delay before the first retry (default 200ms)

	// OnRetry, if set, is called before each retry is scheduled with the
	// 1-indexed attempt number and the error that triggered it. Used for
	// logging and metrics; must not block.
	OnRetry func(attempt int, err error)
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	return o
}

// job is a submitted task plus its retry state. The retry counter and
// backoff policy are owned exclusively by the scheduler.
type job[T any] struct {
	ctx     context.Context
	fn      Task[T]
	retries int
	policy  *backoff.ExponentialBackOff

	done   chan struct{}
	result T
	err    error
}

// Handle is the caller's view of a submitted task.
type Handle[T any] struct {
	j *job[T]
}

// Wait blocks until the task resolves (possibly after retries) or ctx is
// cancelled. It returns the task's value or its terminal error.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.j.done:
		return h.j.result, h.j.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the task has terminally resolved.
func (h *Handle[T]) Done() <-chan struct{} { return h.j.done }

// Scheduler runs tasks with bounded concurrency and retry-on-failure.
// All queue and counter mutation happens under one mutex; task functions
// themselves run on their own goroutines.
type Scheduler[T any] struct {
	opts Options

	mu      sync.Mutex
	queue   []*job[T] // pending jobs, head at index 0
	running int
	closed  bool
}

// New creates a Scheduler with the given options.
func New[T any](opts Options) *Scheduler[T] {
	return &Scheduler[T]{opts: opts.withDefaults()}
}

// Submit appends a task to the tail of the pending queue and returns a
// handle to its eventual result. ctx is passed through to the task
// function on every attempt. Submitting to a closed scheduler resolves
// the handle immediately with ErrClosed.
func (s *Scheduler[T]) Submit(ctx context.Context, fn Task[T]) *Handle[T] {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.BaseDelay
	policy.Multiplier = 2.0
	policy.RandomizationFactor = 0.15
	policy.MaxInterval = time.Hour  // never clamp within a realistic retry budget
	policy.MaxElapsedTime = 0       // retry budget is attempt-counted, not time-bound
	policy.Reset()

	j := &job[T]{
		ctx:    ctx,
		fn:     fn,
		policy: policy,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		j.err = ErrClosed
		close(j.done)
		return &Handle[T]{j: j}
	}
	s.queue = append(s.queue, j)
	s.drainLocked()
	s.mu.Unlock()

	return &Handle[T]{j: j}
}

// drainLocked starts queued jobs while free slots remain.
// Caller must hold s.mu.
func (s *Scheduler[T]) drainLocked() {
	for s.running < s.opts.Concurrency && len(s.queue) > 0 {
		j := s.queue[0]
		s.queue = s.queue[1:]
		s.running++
		go s.run(j)
	}
}

// run executes one attempt of a job and routes the outcome.
func (s *Scheduler[T]) run(j *job[T]) {
	result, err := j.fn(j.ctx)

	s.mu.Lock()
	s.running--

	if err == nil {
		s.drainLocked()
		s.mu.Unlock()
		j.result = result
		close(j.done)
		return
	}

	if j.retries < s.opts.MaxRetries {
		j.retries++
		attempt := j.retries
		delay := j.policy.NextBackOff()
		s.drainLocked()
		s.mu.Unlock()

		if s.opts.OnRetry != nil {
			s.opts.OnRetry(attempt, err)
		}

		// Re-queue at the head after the backoff delay so retried work
		// runs before never-started work. The timer self-cleans on fire.
		time.AfterFunc(delay, func() {
			s.mu.Lock()
			s.queue = append([]*job[T]{j}, s.queue...)
			s.drainLocked()
			s.mu.Unlock()
		})
		return
	}

	s.drainLocked()
	s.mu.Unlock()
	j.err = &RetryExhaustedError{Retries: s.opts.MaxRetries, Err: err}
	close(j.done)
}

// Pending returns the number of tasks queued but not yet running.
// Tasks waiting out a backoff delay are not counted.
func (s *Scheduler[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Running returns the number of tasks currently executing.
func (s *Scheduler[T]) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close stops the scheduler from accepting new work. Tasks already
// submitted run to completion, including scheduled retries. Safe to
// call multiple times.
func (s *Scheduler[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
