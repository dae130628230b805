package task

import (
	"errors"
	"fmt"
)

// Engine errors. Callers classify them with errors.Is.
var (
	// ErrCapacity is returned by Submit when both the running set and the
	// pending queue are full. Nothing is persisted; the caller may retry later.
	ErrCapacity = errors.New("task capacity reached, retry later")

	// ErrWatchTimeout is recorded on tasks whose provider job did not finish
	// within the watch timeout.
	ErrWatchTimeout = errors.New("task did not finish within the watch timeout")

	// ErrAlreadyTerminal marks a terminal update that lost the race to
	// another writer. It never reaches callers of the engine.
	ErrAlreadyTerminal = errors.New("task already finished")

	// ErrRetriesExhausted is recorded when the provider stayed at capacity
	// for more launch attempts than allowed.
	ErrRetriesExhausted = errors.New("provider stayed at capacity, launch retries exhausted")

	ErrUnknownKind     = errors.New("unknown task kind")
	ErrInvalidMetadata = errors.New("invalid task metadata")
	ErrTaskNotFound    = errors.New("task not found")
	ErrEngineStopped   = errors.New("task engine stopped")
)

// CancelledMessage is the error message recorded on cancelled tasks.
const CancelledMessage = "cancelled"

// FatalLaunchError wraps a provider error that makes a launch pointless to retry.
type FatalLaunchError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalLaunchError) Error() string {
	return fmt.Sprintf("launch failed: %v", e.Err)
}

// Unwrap returns the provider error.
func (e *FatalLaunchError) Unwrap() error {
	return e.Err
}

// Materialization stages
const (
	StageFetch    = "fetch"
	StageRelocate = "relocate"
)

// MaterializationError describes a failure to fetch or relocate a result.
// It is logged and never changes a task's outcome.
type MaterializationError struct {
	Stage      string
	ExternalID string
	Err        error
}

// Error implements the error interface.
func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize %s (%s): %v", e.ExternalID, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MaterializationError) Unwrap() error {
	return e.Err
}
