package eventsourcing_test

import (
	"context"
	"errors"
	"testing"

	cqrs "github.com/vantage-obs/eventsourcing"
	"github.com/vantage-obs/eventsourcing/fixtures"
)

type GaugeMoved struct {
	ID    string  `json:"aggregate_id"`
	Value float64 `json:"value"`
}

func (e *GaugeMoved) EventType() string   { return "GaugeMoved" }
func (e *GaugeMoved) AggregateID() string { return e.ID }

type Gauge struct {
	*cqrs.AggregateBase
	Value float64
}

func NewGauge(id string) *Gauge {
	g := &Gauge{}
	g.AggregateBase = cqrs.NewAggregateBase(id, cqrs.Applier(
		cqrs.NewApplyHandler(func(e *GaugeMoved, _ *cqrs.Envelope) {
			g.Value = e.Value
		}),
	))
	return g
}

func (g *Gauge) Move(value float64) {
	g.Raise(&GaugeMoved{ID: g.EntityID(), Value: value})
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo := cqrs.NewRepository(fixtures.EmptyStore(), NewGauge)

	_, err := repo.GetByID(t.Context(), "missing")
	if !errors.Is(err, cqrs.ErrAggregateNotFound) {
		t.Fatalf("expected ErrAggregateNotFound, got %v", err)
	}
}

func TestRepositorySaveAndReload(t *testing.T) {
	store := fixtures.NewStoreSpy()
	repo := cqrs.NewRepository(store, NewGauge)

	g := NewGauge("metric-cpu-usage")
	g.Move(12.5)
	g.Move(99.9)

	if err := repo.Save(t.Context(), g, cqrs.NoStream{}); err != nil {
		t.Fatal(err)
	}

	if len(g.UncommittedEvents()) != 0 {
		t.Error("expected no uncommitted events after save")
	}

	stored := store.Stored("metric-cpu-usage")
	if len(stored) != 2 {
		t.Fatalf("stored %d events, want 2", len(stored))
	}
	if stored[0].Sequence != 1 || stored[1].Sequence != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", stored[0].Sequence, stored[1].Sequence)
	}

	reloaded, err := repo.GetByID(t.Context(), "metric-cpu-usage")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Value != 99.9 {
		t.Errorf("Value = %v, want 99.9", reloaded.Value)
	}
	if reloaded.AggregateVersion() != 2 {
		t.Errorf("AggregateVersion = %d, want 2", reloaded.AggregateVersion())
	}
}

func TestRepositorySaveNothingToDo(t *testing.T) {
	store := fixtures.NewStoreSpy()
	repo := cqrs.NewRepository(store, NewGauge)

	g := NewGauge("metric-cpu-usage")

	if err := repo.Save(t.Context(), g, cqrs.Any{}); err != nil {
		t.Fatal(err)
	}
	if store.AppendCalls != 0 {
		t.Errorf("AppendCalls = %d, want 0", store.AppendCalls)
	}
}

func TestRepositorySaveConflict(t *testing.T) {
	store := fixtures.ConflictingStore("metric-cpu-usage", 0, 3)
	repo := cqrs.NewRepository(store, NewGauge)

	g := NewGauge("metric-cpu-usage")
	g.Move(1)

	err := repo.Save(t.Context(), g, cqrs.NoStream{})
	if !cqrs.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(g.UncommittedEvents()) != 1 {
		t.Error("failed save must keep uncommitted events")
	}
}

func TestRepositorySaveAbortsOnFirstFailure(t *testing.T) {
	store := fixtures.NewStoreSpy()
	boom := errors.New("boom")
	appends := 0
	store.AppendFn = func(ctx context.Context, envlp cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
		appends++
		if appends == 2 {
			return cqrs.AppendResult{}, boom
		}
		return cqrs.AppendResult{Sequence: envlp.Sequence}, nil
	}

	repo := cqrs.NewRepository(store, NewGauge)

	g := NewGauge("metric-cpu-usage")
	g.Move(1)
	g.Move(2)
	g.Move(3)

	err := repo.Save(t.Context(), g, cqrs.NoStream{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected append failure, got %v", err)
	}
	if appends != 2 {
		t.Errorf("appends = %d; the third event must never be attempted", appends)
	}
}

func TestRepositorySaveAdvancesExpectation(t *testing.T) {
	store := fixtures.NewStoreSpy()
	var expects []cqrs.Expect
	store.AppendFn = func(ctx context.Context, envlp cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
		expects = append(expects, expect)
		return cqrs.AppendResult{Sequence: envlp.Sequence}, nil
	}

	repo := cqrs.NewRepository(store, NewGauge)

	g := NewGauge("metric-cpu-usage")
	g.Move(1)
	g.Move(2)

	if err := repo.Save(t.Context(), g, cqrs.NoStream{}); err != nil {
		t.Fatal(err)
	}

	if len(expects) != 2 {
		t.Fatalf("appends = %d, want 2", len(expects))
	}
	if _, ok := expects[0].(cqrs.NoStream); !ok {
		t.Errorf("first expect = %T, want NoStream", expects[0])
	}
	if exact, ok := expects[1].(cqrs.Exact); !ok || uint64(exact) != 1 {
		t.Errorf("second expect = %v, want Exact(1)", expects[1])
	}
}
