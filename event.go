package eventsourcing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// SchemaVersion is stamped on every envelope so stored payloads can be
// migrated later without guessing which shape they were written in.
const SchemaVersion = "1.0"

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope wraps a domain event with the bookkeeping the store and the
// publisher need. Sequence is tentative until the envelope has been appended;
// the store is the only authority on sequence assignment.
type Envelope struct {
	EventID       uuid.UUID
	AggregateID   string
	Sequence      uint64
	Event         Event
	CorrelationID string
	SchemaVersion string
	OccurredAt    time.Time
	Metadata      map[string]any
}

// EventOption customizes an envelope at raise time.
type EventOption func(*Envelope)

// WithMetadata merges the given key-value pairs into the envelope metadata.
func WithMetadata(metadata map[string]any) EventOption {
	return func(env *Envelope) {
		for k, v := range metadata {
			env.Metadata[k] = v
		}
	}
}

// WithCorrelationID sets the correlation id instead of generating a fresh one.
func WithCorrelationID(id string) EventOption {
	return func(env *Envelope) {
		env.CorrelationID = id
	}
}

// WithOccurredAt overrides the envelope timestamp. Intended for replays and tests.
func WithOccurredAt(t time.Time) EventOption {
	return func(env *Envelope) {
		env.OccurredAt = t
	}
}

// NewEnvelope wraps an event for appending. The correlation id defaults to a
// freshly generated value unless one is supplied via WithCorrelationID.
func NewEnvelope(event Event, sequence uint64, options ...EventOption) Envelope {
	env := Envelope{
		EventID:       uuid.New(),
		AggregateID:   event.AggregateID(),
		Sequence:      sequence,
		Event:         event,
		SchemaVersion: SchemaVersion,
		OccurredAt:    now(),
		Metadata:      make(map[string]any),
	}

	for _, option := range options {
		option(&env)
	}

	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}

	return env
}

// TypeName returns the name of an event, or "" for nil.
func TypeName(event Event) string {
	if event == nil {
		return ""
	}
	return event.EventType()
}

// RawEvent carries a stored event whose type is not registered in this
// process. Apply functions treat it as a no-op, which keeps old binaries
// tolerant of event types introduced by newer writers.
type RawEvent struct {
	StreamID string
	Type     string
	Data     json.RawMessage
}

func (e RawEvent) AggregateID() string { return e.StreamID }
func (e RawEvent) EventType() string   { return e.Type }
