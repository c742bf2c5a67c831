package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyHistory is returned when reconstruction is attempted from zero
	// events. Callers should have created a fresh aggregate instead.
	ErrEmptyHistory = errors.New("cannot reconstruct aggregate from empty event history")

	// ErrAggregateNotFound is returned by Repository.GetByID when no events
	// exist for the given id.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrDuplicateHandler is returned when two handlers are registered for the
	// same event type.
	ErrDuplicateHandler = errors.New("duplicate handler")

	// ErrPublisherClosed is returned when publishing on a closed publisher.
	ErrPublisherClosed = errors.New("publisher is closed")
)

// ConflictError reports an optimistic-concurrency conflict: the expected
// version did not match the latest persisted sequence at append time.
// It is recoverable; callers should reload the aggregate and retry.
type ConflictError struct {
	AggregateID string
	Expected    uint64
	Actual      uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %q: expected version %d, actual %d",
		e.AggregateID, e.Expected, e.Actual)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// StorageError wraps an underlying I/O failure from an event store backend.
// Distinct from ConflictError so callers can retry with backoff instead of
// reloading.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("event store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorageError wraps err as a StorageError for the given operation.
// Returns nil when err is nil. Conflicts pass through untouched so the
// taxonomy stays intact.
func WrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConflict(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ValidationError reports a domain-level pre-check failure. It is raised
// before any event is raised, never by the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event Event
}

func (e *ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %T", e.Event)
}
