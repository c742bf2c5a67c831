package eventsourcing

import (
	"context"
)

// EventStore is the contract for an append-only event log partitioned by
// aggregate id.
//
// Implementations must guarantee:
//   - Sequence numbers within one aggregate's stream are gap-free, strictly
//     increasing, and start at 1. The store assigns them; the producer's
//     tentative sequence is informational only.
//   - The sequence read and the conditional write in Append are atomic with
//     respect to other appends for the same aggregate id. Appends for
//     different aggregate ids need no coordination.
//   - Load* methods yield events oldest to newest. A stream with no events
//     yields an empty iterator, not an error.
//   - Events are immutable once appended; no update or delete exists.
//
// Append and Load* may block on storage I/O. Timeouts and cancellation are
// the caller's responsibility via the context.
type EventStore interface {
	// Append appends a single envelope to its aggregate's stream, assigning
	// sequence latest+1.
	//
	// Errors:
	//   - *ConflictError when expect does not match the latest persisted
	//     sequence at the moment of the atomic check.
	//   - *StorageError for any underlying I/O failure.
	Append(ctx context.Context, env Envelope, expect Expect) (AppendResult, error)

	// LoadStream loads all events for the given aggregate id in ascending
	// sequence order.
	LoadStream(ctx context.Context, id string) (*Iterator[*Envelope], error)

	// LoadStreamFrom loads events with sequence >= from, ascending.
	LoadStreamFrom(ctx context.Context, id string, from uint64) (*Iterator[*Envelope], error)

	// LatestSequence returns the latest persisted sequence for the aggregate,
	// 0 when no events exist. Each call re-reads the backend; the store keeps
	// no in-process sequence cache.
	LatestSequence(ctx context.Context, id string) (uint64, error)

	// Close releases any resources held by the store. Implementations should
	// make Close idempotent.
	Close() error
}

// AppendResult describes the outcome of a successful append.
type AppendResult struct {
	// Sequence is the sequence number the store assigned to the event.
	Sequence uint64
}
