package operations

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned when the job buffer has no room
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueStopped is returned by Enqueue after Stop
	ErrQueueStopped = errors.New("job queue is stopped")
	// ErrNotCancellable is returned when cancelling a finished job
	ErrNotCancellable = errors.New("job cannot be cancelled")
)

// StageError reports the step a job failed in
type StageError struct {
	Stage string
	Cause error
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e == nil {
		return "unknown stage error"
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// FailedStage returns the stage named by a StageError in err's chain
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
