package fixtures

import (
	"context"
	"io"

	es "github.com/vantage-obs/eventsourcing"
)

// EmptyIterator returns an iterator that yields no items.
func EmptyIterator() *es.Iterator[*es.Envelope] {
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		return nil, io.EOF
	})
}

// FailingIterator returns an iterator that fails with the given error.
func FailingIterator(err error) *es.Iterator[*es.Envelope] {
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		return nil, err
	})
}

// SingleEnvelopeIterator returns an iterator that yields a single envelope.
func SingleEnvelopeIterator(envlp *es.Envelope) *es.Iterator[*es.Envelope] {
	returned := false
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if returned {
			return nil, io.EOF
		}
		returned = true
		return envlp, nil
	})
}

// EnvelopeIteratorFromEvents creates an iterator from events.
func EnvelopeIteratorFromEvents(events ...es.Event) *es.Iterator[*es.Envelope] {
	return SliceIterator(EnvelopesFromEvents(events...))
}

// FailAfterNIterator returns an iterator that yields n items, then fails.
func FailAfterNIterator(envelopes []*es.Envelope, n int, err error) *es.Iterator[*es.Envelope] {
	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if idx >= n {
			return nil, err
		}
		if idx >= len(envelopes) {
			return nil, io.EOF
		}
		envlp := envelopes[idx]
		idx++
		return envlp, nil
	})
}

// ContextAwareIterator returns an iterator that respects context cancellation.
func ContextAwareIterator(envelopes []*es.Envelope) *es.Iterator[*es.Envelope] {
	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if idx >= len(envelopes) {
			return nil, io.EOF
		}
		envlp := envelopes[idx]
		idx++
		return envlp, nil
	})
}
