package eventsourcing

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryStore decorates an EventStore with bounded retries on storage I/O
// failures. Concurrency conflicts are never retried here: a conflict means
// the caller must reload the aggregate and reapply, which only the caller
// can do.
type RetryStore struct {
	next       EventStore
	newBackOff func() backoff.BackOff
}

var _ EventStore = (*RetryStore)(nil)

// RetryOption customizes a RetryStore.
type RetryOption func(*RetryStore)

// WithBackOff sets the factory producing the backoff policy for each
// operation. The default is exponential with a 30s cap on elapsed time.
func WithBackOff(factory func() backoff.BackOff) RetryOption {
	return func(s *RetryStore) {
		s.newBackOff = factory
	}
}

// NewRetryStore wraps next with retry-on-storage-failure semantics.
func NewRetryStore(next EventStore, options ...RetryOption) *RetryStore {
	s := &RetryStore{
		next: next,
		newBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.MaxElapsedTime = 30 * time.Second
			return policy
		},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func retryable(err error) error {
	if err == nil {
		return nil
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	// Conflicts and everything else surface immediately.
	return backoff.Permanent(err)
}

func (s *RetryStore) Append(ctx context.Context, env Envelope, expect Expect) (AppendResult, error) {
	return backoff.RetryWithData(func() (AppendResult, error) {
		result, err := s.next.Append(ctx, env, expect)
		return result, retryable(err)
	}, backoff.WithContext(s.newBackOff(), ctx))
}

func (s *RetryStore) LoadStream(ctx context.Context, id string) (*Iterator[*Envelope], error) {
	return backoff.RetryWithData(func() (*Iterator[*Envelope], error) {
		iter, err := s.next.LoadStream(ctx, id)
		return iter, retryable(err)
	}, backoff.WithContext(s.newBackOff(), ctx))
}

func (s *RetryStore) LoadStreamFrom(ctx context.Context, id string, from uint64) (*Iterator[*Envelope], error) {
	return backoff.RetryWithData(func() (*Iterator[*Envelope], error) {
		iter, err := s.next.LoadStreamFrom(ctx, id, from)
		return iter, retryable(err)
	}, backoff.WithContext(s.newBackOff(), ctx))
}

func (s *RetryStore) LatestSequence(ctx context.Context, id string) (uint64, error) {
	return backoff.RetryWithData(func() (uint64, error) {
		seq, err := s.next.LatestSequence(ctx, id)
		return seq, retryable(err)
	}, backoff.WithContext(s.newBackOff(), ctx))
}

func (s *RetryStore) Close() error {
	return s.next.Close()
}
