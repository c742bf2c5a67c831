package fixtures

import (
	"time"

	"github.com/google/uuid"

	es "github.com/vantage-obs/eventsourcing"
)

// EnvelopeOption is a functional option for configuring a test Envelope.
type EnvelopeOption func(*es.Envelope)

// NewEnvelope creates an Envelope with the given event and options.
func NewEnvelope(event es.Event, opts ...EnvelopeOption) *es.Envelope {
	envlp := &es.Envelope{
		EventID:       uuid.New(),
		AggregateID:   event.AggregateID(),
		Sequence:      1,
		Event:         event,
		CorrelationID: uuid.NewString(),
		SchemaVersion: es.SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		Metadata:      make(map[string]any),
	}

	for _, opt := range opts {
		opt(envlp)
	}

	return envlp
}

// WithEventID sets a specific event ID.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *es.Envelope) {
		e.EventID = id
	}
}

// WithAggregateID overrides the aggregate ID (defaults to the event's).
func WithAggregateID(id string) EnvelopeOption {
	return func(e *es.Envelope) {
		e.AggregateID = id
	}
}

// WithSequence sets the stream sequence.
func WithSequence(seq uint64) EnvelopeOption {
	return func(e *es.Envelope) {
		e.Sequence = seq
	}
}

// WithCorrelationID sets the correlation id.
func WithCorrelationID(id string) EnvelopeOption {
	return func(e *es.Envelope) {
		e.CorrelationID = id
	}
}

// WithTimestamp sets the occurred-at timestamp.
func WithTimestamp(t time.Time) EnvelopeOption {
	return func(e *es.Envelope) {
		e.OccurredAt = t
	}
}

// WithMetadataField adds a single metadata field.
func WithMetadataField(key string, value any) EnvelopeOption {
	return func(e *es.Envelope) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// EnvelopesFromEvents creates envelopes from a slice of events with
// sequences 1..n and strictly increasing timestamps.
func EnvelopesFromEvents(events ...es.Event) []*es.Envelope {
	envelopes := make([]*es.Envelope, len(events))
	baseTime := time.Now().UTC()

	for i, event := range events {
		envelopes[i] = NewEnvelope(event,
			WithSequence(uint64(i+1)),
			WithTimestamp(baseTime.Add(time.Duration(i)*time.Millisecond)),
		)
	}

	return envelopes
}

// EnvelopeValuesFromEvents creates envelope values from a slice of events.
func EnvelopeValuesFromEvents(events ...es.Event) []es.Envelope {
	ptrs := EnvelopesFromEvents(events...)
	values := make([]es.Envelope, len(ptrs))
	for i, p := range ptrs {
		values[i] = *p
	}
	return values
}
