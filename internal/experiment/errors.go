package experiment

import (
	"errors"
	"fmt"

	"github.com/splitlab/splitlab/internal/store"
)

// ValidationError reports malformed input: bad variant counts, allocation
// sums, unknown winner names, duplicate experiment names. Never retryable.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing experiment or assignment.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// StateConflictError reports an operation disallowed by the experiment's
// current lifecycle state.
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string { return e.Reason }

func stateConflictf(format string, args ...interface{}) *StateConflictError {
	return &StateConflictError{Reason: fmt.Sprintf(format, args...)}
}

// StoreUnavailableError wraps a transient store failure. Callers may retry
// GetOrCreateAssignment safely (creation converges on the stored variant);
// retrying TrackEvent blindly can double-count and needs caller-side dedup.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// storeErr translates a store-layer error into the engine taxonomy.
func storeErr(err error, resource, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return &StoreUnavailableError{Err: err}
}
