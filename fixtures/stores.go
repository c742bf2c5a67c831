package fixtures

import (
	"context"
	"io"
	"sync"

	es "github.com/vantage-obs/eventsourcing"
)

// StoreSpy is a configurable mock EventStore for testing.
// It tracks calls and allows injecting custom behavior or failures.
type StoreSpy struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	AppendFn         func(ctx context.Context, envlp es.Envelope, expect es.Expect) (es.AppendResult, error)
	LoadStreamFn     func(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error)
	LoadStreamFromFn func(ctx context.Context, id string, from uint64) (*es.Iterator[*es.Envelope], error)
	CloseFn          func() error

	// Call tracking
	AppendCalls         int
	LoadStreamCalls     int
	LoadStreamFromCalls int
	CloseCalls          int

	// Captured arguments from last call
	LastAppended     *es.Envelope
	LastExpect       es.Expect
	LastLoadStreamID string

	// Pre-configured data
	events map[string][]*es.Envelope // aggregateID -> envelopes

	// Error injection
	loadErr   error
	appendErr error
}

var _ es.EventStore = (*StoreSpy)(nil)

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{
		events: make(map[string][]*es.Envelope),
	}
}

// WithEvents pre-populates the store with envelopes for an aggregate.
func (s *StoreSpy) WithEvents(id string, envelopes ...*es.Envelope) *StoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = envelopes
	return s
}

// WithEventsFromSlice pre-populates the store from plain events.
func (s *StoreSpy) WithEventsFromSlice(id string, events ...es.Event) *StoreSpy {
	return s.WithEvents(id, EnvelopesFromEvents(events...)...)
}

// FailOnLoad configures the store to return an error on load operations.
func (s *StoreSpy) FailOnLoad(err error) *StoreSpy {
	s.loadErr = err
	return s
}

// FailOnAppend configures the store to return an error on append operations.
func (s *StoreSpy) FailOnAppend(err error) *StoreSpy {
	s.appendErr = err
	return s
}

// Append implements EventStore.Append.
func (s *StoreSpy) Append(ctx context.Context, envlp es.Envelope, expect es.Expect) (es.AppendResult, error) {
	s.mu.Lock()
	s.AppendCalls++
	s.LastAppended = &envlp
	s.LastExpect = expect
	s.mu.Unlock()

	if s.AppendFn != nil {
		return s.AppendFn(ctx, envlp, expect)
	}

	if s.appendErr != nil {
		return es.AppendResult{}, s.appendErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := envlp.AggregateID
	latest := uint64(len(s.events[id]))
	if err := es.CheckExpect(expect, latest, id); err != nil {
		return es.AppendResult{}, err
	}

	envlp.Sequence = latest + 1
	s.events[id] = append(s.events[id], &envlp)

	return es.AppendResult{Sequence: envlp.Sequence}, nil
}

// LoadStream implements EventStore.LoadStream.
func (s *StoreSpy) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamCalls++
	s.LastLoadStreamID = id
	s.mu.Unlock()

	if s.LoadStreamFn != nil {
		return s.LoadStreamFn(ctx, id)
	}

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	events := s.events[id]
	s.mu.Unlock()

	return SliceIterator(events), nil
}

// LoadStreamFrom implements EventStore.LoadStreamFrom.
func (s *StoreSpy) LoadStreamFrom(ctx context.Context, id string, from uint64) (*es.Iterator[*es.Envelope], error) {
	s.mu.Lock()
	s.LoadStreamFromCalls++
	s.LastLoadStreamID = id
	s.mu.Unlock()

	if s.LoadStreamFromFn != nil {
		return s.LoadStreamFromFn(ctx, id, from)
	}

	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.Lock()
	events := s.events[id]
	s.mu.Unlock()

	var filtered []*es.Envelope
	for _, e := range events {
		if e.Sequence >= from {
			filtered = append(filtered, e)
		}
	}

	return SliceIterator(filtered), nil
}

// LatestSequence implements EventStore.LatestSequence.
func (s *StoreSpy) LatestSequence(ctx context.Context, id string) (uint64, error) {
	if s.loadErr != nil {
		return 0, s.loadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.events[id])), nil
}

// Close implements EventStore.Close.
func (s *StoreSpy) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()

	if s.CloseFn != nil {
		return s.CloseFn()
	}
	return nil
}

// Stored returns the envelopes appended for an aggregate.
func (s *StoreSpy) Stored(id string) []*es.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*es.Envelope, len(s.events[id]))
	copy(out, s.events[id])
	return out
}

// Reset clears all call counts and stored data.
func (s *StoreSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.AppendCalls = 0
	s.LoadStreamCalls = 0
	s.LoadStreamFromCalls = 0
	s.CloseCalls = 0
	s.LastAppended = nil
	s.LastExpect = nil
	s.LastLoadStreamID = ""
	s.events = make(map[string][]*es.Envelope)
	s.loadErr = nil
	s.appendErr = nil
}

// Pre-built store scenarios.

// EmptyStore returns a StoreSpy with no events.
func EmptyStore() *StoreSpy {
	return NewStoreSpy()
}

// StoreWithEvents returns a StoreSpy pre-populated with n test events.
func StoreWithEvents(id string, n int) *StoreSpy {
	events := NewTestEvent().WithID(id).BuildN(n)
	return NewStoreSpy().WithEventsFromSlice(id, events...)
}

// FailingStore returns a StoreSpy that fails on all operations.
func FailingStore(err error) *StoreSpy {
	return NewStoreSpy().FailOnLoad(err).FailOnAppend(err)
}

// ConflictingStore returns a StoreSpy whose appends always conflict.
func ConflictingStore(id string, expected, actual uint64) *StoreSpy {
	store := NewStoreSpy()
	store.AppendFn = func(ctx context.Context, envlp es.Envelope, expect es.Expect) (es.AppendResult, error) {
		return es.AppendResult{}, &es.ConflictError{
			AggregateID: id,
			Expected:    expected,
			Actual:      actual,
		}
	}
	return store
}

// SliceIterator creates an iterator from a slice of envelope pointers.
func SliceIterator(envelopes []*es.Envelope) *es.Iterator[*es.Envelope] {
	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if idx >= len(envelopes) {
			return nil, io.EOF
		}
		envlp := envelopes[idx]
		idx++
		return envlp, nil
	})
}
