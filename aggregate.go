package eventsourcing

import (
	"github.com/google/uuid"
)

// Aggregate is the interface that all aggregates must implement. Domain
// aggregates embed *AggregateBase and supply only the apply function and the
// operations that raise events; every state field must be derived through
// ApplyEvent and nothing else.
type Aggregate interface {

	// EntityID returns the unique identifier of the aggregate.
	EntityID() string

	// AggregateVersion returns the count of events applied so far.
	AggregateVersion() uint64

	// UncommittedEvents returns the events raised since the last successful
	// persist, in raise order.
	UncommittedEvents() []Envelope

	// MarkEventsCommitted clears the uncommitted events without touching state.
	MarkEventsCommitted()

	// ApplyEvent dispatches the envelope to the aggregate's apply function and
	// increments the version. Must be pure: no I/O, no raising further events.
	ApplyEvent(env *Envelope)
}

// AggregateBase carries the event-sourcing lifecycle shared by all aggregates.
type AggregateBase struct {
	id     string
	v      uint64
	apply  ApplyFunc
	events []Envelope
}

// NewAggregateBase creates an aggregate base. An empty id is replaced with a
// generated one. The apply function receives every envelope, both raised and
// replayed.
func NewAggregateBase(id string, apply ApplyFunc) *AggregateBase {
	if id == "" {
		id = uuid.NewString()
	}
	return &AggregateBase{
		id:     id,
		apply:  apply,
		events: make([]Envelope, 0),
	}
}

// EntityID implements the EntityID method of the Aggregate interface.
func (a *AggregateBase) EntityID() string {
	return a.id
}

// AggregateVersion implements the AggregateVersion method of the Aggregate interface.
func (a *AggregateBase) AggregateVersion() uint64 {
	return a.v
}

// UncommittedEvents implements the UncommittedEvents method of the Aggregate interface.
func (a *AggregateBase) UncommittedEvents() []Envelope {
	return a.events
}

// MarkEventsCommitted implements the MarkEventsCommitted method of the Aggregate interface.
func (a *AggregateBase) MarkEventsCommitted() {
	a.events = nil
}

// ApplyEvent runs the apply function and increments the version. Unknown
// event types are a no-op inside the apply function, never an error.
func (a *AggregateBase) ApplyEvent(env *Envelope) {
	if a.apply != nil {
		a.apply(env)
	}
	a.v++
}

// Raise constructs an envelope for the event, appends it to the uncommitted
// list and applies it immediately, so in-memory state always reflects every
// event raised so far. The tentative sequence is version+1; the store remains
// authoritative at append time.
func (a *AggregateBase) Raise(event Event, options ...EventOption) {
	env := NewEnvelope(event, a.v+1, options...)
	a.events = append(a.events, env)
	a.ApplyEvent(&a.events[len(a.events)-1])
}
