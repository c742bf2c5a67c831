package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Repository binds one aggregate type to an event store. It owns no aggregate
// instances; it is a stateless coordinator over load and save.
type Repository[T Aggregate] struct {
	store   EventStore
	factory func(id string) T
	logger  *slog.Logger
}

// RepositoryOption customizes a Repository.
type RepositoryOption[T Aggregate] func(*Repository[T])

// WithRepositoryLogger attaches a structured logger. Without one the
// repository stays silent.
func WithRepositoryLogger[T Aggregate](logger *slog.Logger) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.logger = logger
	}
}

// NewRepository creates a repository for the aggregate type produced by
// factory. The factory builds a fresh, empty instance for the given id.
func NewRepository[T Aggregate](store EventStore, factory func(id string) T, options ...RepositoryOption[T]) *Repository[T] {
	r := &Repository[T]{
		store:   store,
		factory: factory,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// GetByID loads an aggregate by replaying its stored history. Returns
// ErrAggregateNotFound when no events exist; the caller decides whether
// absent means "create new".
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T

	history, err := r.store.LoadStream(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("get aggregate %q: %w", id, err)
	}

	aggregate, err := FromHistory(ctx, r.factory, history)
	if errors.Is(err, ErrEmptyHistory) {
		return zero, fmt.Errorf("get aggregate %q: %w", id, ErrAggregateNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("get aggregate %q: %w", id, err)
	}

	return aggregate, nil
}

// Save persists the aggregate's uncommitted events in raise order, preserving
// causal order: event N is never appended before event N-1. The expectation
// applies to the first append and advances with each assigned sequence.
//
// On any append failure the save is aborted and the error returned. A failed
// save means some prefix of the uncommitted events may already be durable;
// the caller must reload via GetByID before retrying rather than re-appending
// the same batch.
func (r *Repository[T]) Save(ctx context.Context, aggregate T, expect Expect) error {
	events := aggregate.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	for i := range events {
		result, err := r.store.Append(ctx, events[i], expect)
		if err != nil {
			return fmt.Errorf("save aggregate %q: append event %d of %d: %w",
				aggregate.EntityID(), i+1, len(events), err)
		}

		// Subsequent appends in the batch expect the sequence just assigned.
		expect = Exact(result.Sequence)
	}

	aggregate.MarkEventsCommitted()

	if r.logger != nil {
		r.logger.InfoContext(ctx, "aggregate saved",
			"aggregate_id", aggregate.EntityID(),
			"version", aggregate.AggregateVersion(),
			"events", len(events),
		)
	}

	return nil
}
