package scheduler

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for tasks submitted after Close.
var ErrClosed = errors.New("scheduler is closed")

// RetryExhaustedError is the terminal error for a task that failed on
// every attempt. Retries is the configured maximum retry count; Err is
// the error from the final attempt.
type RetryExhaustedError struct {
	Retries int
	Err     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("task failed after %d retries: %v", e.Retries, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }
