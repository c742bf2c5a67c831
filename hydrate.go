package eventsourcing

import (
	"context"
	"fmt"
)

// FromHistory reconstructs an aggregate by replaying its stored event history
// in ascending sequence order. The factory receives the aggregate id taken
// from the first envelope. History events are already committed, so the
// returned aggregate has no uncommitted events.
//
// Fails with ErrEmptyHistory when the iterator yields no events; an absent
// aggregate should be created fresh, not hydrated.
func FromHistory[T Aggregate](ctx context.Context, factory func(id string) T, history *Iterator[*Envelope]) (T, error) {
	var (
		aggregate T
		hydrated  bool
	)

	for history.Next(ctx) {
		env := history.Value()
		if !hydrated {
			aggregate = factory(env.AggregateID)
			hydrated = true
		}
		aggregate.ApplyEvent(env)
	}

	if err := history.Err(); err != nil {
		var zero T
		return zero, fmt.Errorf("replay history: %w", err)
	}

	if !hydrated {
		var zero T
		return zero, ErrEmptyHistory
	}

	aggregate.MarkEventsCommitted()
	return aggregate, nil
}
