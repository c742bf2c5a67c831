package logging

import (
	"context"
	"log/slog"

	cqrs "github.com/vantage-obs/eventsourcing"
)

type loggingStore struct {
	logger *slog.Logger
	next   cqrs.EventStore
}

// WithStoreLogging wraps an event store with debug/error logging of appends
// and loads. Concurrency conflicts log at warn; they are expected under
// contention and retried by callers, not operators.
func WithStoreLogging(logger *slog.Logger, next cqrs.EventStore) cqrs.EventStore {
	return &loggingStore{logger: logger, next: next}
}

func (s *loggingStore) Append(ctx context.Context, envlp cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
	l := s.logger.With(
		"aggregate-id", envlp.AggregateID,
		"event-type", cqrs.TypeName(envlp.Event),
	)

	result, err := s.next.Append(ctx, envlp, expect)

	switch {
	case cqrs.IsConflict(err):
		l.WarnContext(ctx, "append conflicted", "error", err)
	case err != nil:
		l.ErrorContext(ctx, "append failed", "error", err)
	default:
		l.DebugContext(ctx, "event appended", "sequence", result.Sequence)
	}

	return result, err
}

func (s *loggingStore) LoadStream(ctx context.Context, id string) (*cqrs.Iterator[*cqrs.Envelope], error) {
	iter, err := s.next.LoadStream(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "load stream failed", "aggregate-id", id, "error", err)
	}
	return iter, err
}

func (s *loggingStore) LoadStreamFrom(ctx context.Context, id string, from uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	iter, err := s.next.LoadStreamFrom(ctx, id, from)
	if err != nil {
		s.logger.ErrorContext(ctx, "load stream failed", "aggregate-id", id, "from", from, "error", err)
	}
	return iter, err
}

func (s *loggingStore) LatestSequence(ctx context.Context, id string) (uint64, error) {
	latest, err := s.next.LatestSequence(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "latest sequence failed", "aggregate-id", id, "error", err)
	}
	return latest, err
}

func (s *loggingStore) Close() error {
	return s.next.Close()
}
