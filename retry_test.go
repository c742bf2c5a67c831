package eventsourcing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"

	cqrs "github.com/vantage-obs/eventsourcing"
	"github.com/vantage-obs/eventsourcing/fixtures"
)

func immediateRetries() func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
	}
}

func TestRetryStoreRetriesStorageFailures(t *testing.T) {
	store := fixtures.NewStoreSpy()
	attempts := 0
	store.AppendFn = func(ctx context.Context, envlp cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
		attempts++
		if attempts < 3 {
			return cqrs.AppendResult{}, &cqrs.StorageError{Op: "append", Err: errors.New("timeout")}
		}
		return cqrs.AppendResult{Sequence: 1}, nil
	}

	retrying := cqrs.NewRetryStore(store, cqrs.WithBackOff(immediateRetries()))

	envlp := cqrs.NewEnvelope(&GaugeMoved{ID: "metric-cpu-usage", Value: 1}, 1)
	result, err := retrying.Append(t.Context(), envlp, cqrs.NoStream{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", result.Sequence)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryStoreDoesNotRetryConflicts(t *testing.T) {
	store := fixtures.ConflictingStore("metric-cpu-usage", 0, 2)
	retrying := cqrs.NewRetryStore(store, cqrs.WithBackOff(immediateRetries()))

	envlp := cqrs.NewEnvelope(&GaugeMoved{ID: "metric-cpu-usage", Value: 1}, 1)
	_, err := retrying.Append(t.Context(), envlp, cqrs.NoStream{})
	if !cqrs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.AppendCalls != 1 {
		t.Errorf("AppendCalls = %d; conflicts must surface immediately", store.AppendCalls)
	}
}

func TestRetryStoreGivesUpAfterBudget(t *testing.T) {
	store := fixtures.NewStoreSpy()
	attempts := 0
	store.AppendFn = func(ctx context.Context, envlp cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
		attempts++
		return cqrs.AppendResult{}, &cqrs.StorageError{Op: "append", Err: errors.New("down")}
	}

	retrying := cqrs.NewRetryStore(store, cqrs.WithBackOff(immediateRetries()))

	envlp := cqrs.NewEnvelope(&GaugeMoved{ID: "metric-cpu-usage", Value: 1}, 1)
	_, err := retrying.Append(t.Context(), envlp, cqrs.NoStream{})

	var storageErr *cqrs.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if attempts != 6 {
		t.Errorf("attempts = %d, want 6 (initial + 5 retries)", attempts)
	}
}

func TestRetryStoreLoadPassesThrough(t *testing.T) {
	store := fixtures.StoreWithEvents("metric-cpu-usage", 3)
	retrying := cqrs.NewRetryStore(store, cqrs.WithBackOff(immediateRetries()))

	iter, err := retrying.LoadStream(t.Context(), "metric-cpu-usage")
	if err != nil {
		t.Fatal(err)
	}

	all, err := iter.All(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("loaded %d events, want 3", len(all))
	}
}
