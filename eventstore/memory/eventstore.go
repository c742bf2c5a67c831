package memory

import (
	"context"
	"sync"

	cqrs "github.com/vantage-obs/eventsourcing"
)

// MemoryStore is an in-process event store. The mutex makes the
// sequence-read-and-append atomic across concurrent writers, which is the
// whole concurrency contract; per-aggregate granularity is not needed for an
// in-memory backend.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string][]*cqrs.Envelope
}

var _ cqrs.EventStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]*cqrs.Envelope),
	}
}

func (m *MemoryStore) Append(ctx context.Context, env cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return cqrs.AppendResult{}, cqrs.WrapStorageError("append", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := env.AggregateID
	latest := uint64(len(m.streams[id]))

	if err := cqrs.CheckExpect(expect, latest, id); err != nil {
		return cqrs.AppendResult{}, err
	}

	env.Sequence = latest + 1
	m.streams[id] = append(m.streams[id], &env)

	return cqrs.AppendResult{Sequence: env.Sequence}, nil
}

func (m *MemoryStore) LoadStream(ctx context.Context, id string) (*cqrs.Iterator[*cqrs.Envelope], error) {
	return m.LoadStreamFrom(ctx, id, 0)
}

func (m *MemoryStore) LoadStreamFrom(ctx context.Context, id string, from uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	m.mu.RLock()
	stream := m.streams[id]
	events := make([]*cqrs.Envelope, 0, len(stream))
	for _, env := range stream {
		if env.Sequence >= from {
			events = append(events, env)
		}
	}
	m.mu.RUnlock()

	// A stream with no history yields an empty iterator, not an error.
	return cqrs.NewSliceIterator(events), nil
}

func (m *MemoryStore) LatestSequence(ctx context.Context, id string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.streams[id])), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = make(map[string][]*cqrs.Envelope)
	return nil
}
