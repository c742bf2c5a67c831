package eventsourcing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// sequenceDigits is the width of the persisted sequence string. Zero-padding
// keeps lexicographic order equal to numeric order, so range scans come back
// ascending regardless of the backend's native ordering.
const sequenceDigits = 10

// FormatSequence renders a sequence number as a fixed-width, lexicographically
// sortable string.
func FormatSequence(seq uint64) string {
	return fmt.Sprintf("%0*d", sequenceDigits, seq)
}

// ParseSequence parses a persisted sequence string back into a number.
func ParseSequence(s string) (uint64, error) {
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sequence %q: %w", s, err)
	}
	return seq, nil
}

// Record is the persisted per-event layout shared by every backend: DynamoDB
// items, SQL rows, and bus payloads all carry these fields.
type Record struct {
	AggregateID   string          `json:"aggregateId"`
	EventSequence string          `json:"eventSequence"`
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	EventData     json.RawMessage `json:"eventData"`
	CorrelationID string          `json:"correlationId"`
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// EncodeRecord serializes an envelope into the persisted layout. The payload
// is opaque to the store; it is whatever the event type marshals to.
func EncodeRecord(env *Envelope) (Record, error) {
	data, err := json.Marshal(env.Event)
	if err != nil {
		return Record{}, fmt.Errorf("encode event %q: %w", TypeName(env.Event), err)
	}

	return Record{
		AggregateID:   env.AggregateID,
		EventSequence: FormatSequence(env.Sequence),
		EventID:       env.EventID.String(),
		EventType:     TypeName(env.Event),
		EventData:     data,
		CorrelationID: env.CorrelationID,
		Timestamp:     env.OccurredAt.UTC().Format(time.RFC3339Nano),
		Version:       env.SchemaVersion,
		Metadata:      env.Metadata,
	}, nil
}

// DecodeRecord deserializes a persisted record back into an envelope. Events
// whose type is not registered decode into a RawEvent so replay stays a no-op
// instead of failing.
func DecodeRecord(rec Record) (*Envelope, error) {
	seq, err := ParseSequence(rec.EventSequence)
	if err != nil {
		return nil, err
	}

	eventID, err := uuid.Parse(rec.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event id %q: %w", rec.EventID, err)
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", rec.Timestamp, err)
	}

	var event Event
	if proto, regErr := NewEventByName(rec.EventType); regErr == nil {
		if err := json.Unmarshal(rec.EventData, proto); err != nil {
			return nil, fmt.Errorf("decode event %q: %w", rec.EventType, err)
		}
		event = proto
	} else {
		event = RawEvent{
			StreamID: rec.AggregateID,
			Type:     rec.EventType,
			Data:     rec.EventData,
		}
	}

	metadata := rec.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Envelope{
		EventID:       eventID,
		AggregateID:   rec.AggregateID,
		Sequence:      seq,
		Event:         event,
		CorrelationID: rec.CorrelationID,
		SchemaVersion: rec.Version,
		OccurredAt:    occurredAt,
		Metadata:      metadata,
	}, nil
}
