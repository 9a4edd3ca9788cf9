package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task package
var (
	// ErrUnknownTaskKind is returned when a description names a kind that is not
	// one of the recognized synonyms. The description is dropped.
	ErrUnknownTaskKind = errors.New("unknown task kind")

	// ErrInvalidFrequency is returned when a periodic description has no
	// positive frequency.
	ErrInvalidFrequency = errors.New("invalid task frequency")

	// ErrInvalidDescription is returned when a description is structurally invalid
	// (missing function, options that do not apply to its kind).
	ErrInvalidDescription = errors.New("invalid task description")

	// ErrUnqueryableState marks a unit whose terminal state was never recorded.
	ErrUnqueryableState = errors.New("task state is unqueryable")

	// ErrAlreadyCreated is returned when a description already produced a unit
	// during the current run.
	ErrAlreadyCreated = errors.New("task unit already created")

	// ErrAlreadyRunning is returned by Driver.Run when called more than once.
	ErrAlreadyRunning = errors.New("driver already running")

	// ErrShutdownTimeout is returned by RunToCompletion when units are still
	// outstanding once the shutdown grace period has expired.
	ErrShutdownTimeout = errors.New("shutdown grace period expired")

	// ErrPoolClosed is returned when blocking work is submitted to a stopped pool.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPanicked indicates a task function panicked. The panic is recovered and
	// reported as the unit's failure.
	ErrPanicked = errors.New("task panicked")
)

// TaskExecutionError wraps the error returned by a unit's function.
type TaskExecutionError struct {
	// Task is the display name of the failed unit
	Task string

	// Err is the error returned (or the recovered panic) of the task function
	Err error
}

// Error implements the error interface
func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

// Unwrap returns the underlying error
func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}
