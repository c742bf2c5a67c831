package observability

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	es "github.com/vantage-obs/eventsourcing"
)

func replayIterator(envelopes []es.Envelope) *es.Iterator[*es.Envelope] {
	i := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		if i >= len(envelopes) {
			return nil, io.EOF
		}
		envlp := &envelopes[i]
		i++
		return envlp, nil
	})
}

func TestCollectMetricRaisesEvent(t *testing.T) {
	m := NewMetricAggregate("metric-cpu-usage")

	err := m.CollectMetric("cpu.usage", 87.5, "percent", "host-1",
		map[string]string{"region": "eu-west-1"}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	if m.Name != "cpu.usage" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.Unit != "percent" {
		t.Errorf("Unit = %q", m.Unit)
	}
	if m.AggregateVersion() != 1 {
		t.Errorf("AggregateVersion = %d, want 1", m.AggregateVersion())
	}

	uncommitted := m.UncommittedEvents()
	if len(uncommitted) != 1 {
		t.Fatalf("UncommittedEvents = %d, want 1", len(uncommitted))
	}

	ev, ok := uncommitted[0].Event.(*MetricCollected)
	if !ok {
		t.Fatalf("event is %T", uncommitted[0].Event)
	}
	if ev.MetricID == "" {
		t.Error("expected a generated metric id")
	}
	if ev.CollectedAt.IsZero() {
		t.Error("zero CollectedAt must default to now")
	}
	if ev.Tags["region"] != "eu-west-1" {
		t.Errorf("Tags = %v", ev.Tags)
	}

	sample, ok := m.Latest()
	if !ok {
		t.Fatal("expected a latest sample")
	}
	if sample.Value != 87.5 {
		t.Errorf("Value = %v", sample.Value)
	}
}

func TestCollectMetricValidation(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		unit   string
		source string
		field  string
	}{
		{"empty name", "", "percent", "host-1", "name"},
		{"empty unit", "cpu.usage", "", "host-1", "unit"},
		{"empty source", "cpu.usage", "percent", "", "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetricAggregate("metric-cpu-usage")
			err := m.CollectMetric(tt.metric, 1, tt.unit, tt.source, nil, time.Time{})

			var validation *es.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validation.Field != tt.field {
				t.Errorf("Field = %q, want %q", validation.Field, tt.field)
			}
			if len(m.UncommittedEvents()) != 0 {
				t.Error("validation failure must not raise an event")
			}
		})
	}
}

func TestCollectMetricRejectsForeignName(t *testing.T) {
	m := NewMetricAggregate("metric-cpu-usage")
	if err := m.CollectMetric("cpu.usage", 10, "percent", "host-1", nil, time.Time{}); err != nil {
		t.Fatal(err)
	}

	err := m.CollectMetric("mem.usage", 10, "percent", "host-1", nil, time.Time{})

	var validation *es.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(m.Samples) != 1 {
		t.Errorf("Samples = %d, want 1", len(m.Samples))
	}
}

func TestMetricReplay(t *testing.T) {
	source := NewMetricAggregate("metric-cpu-usage")
	collectedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range []float64{10, 20, 30} {
		err := source.CollectMetric("cpu.usage", v, "percent", "host-1", nil,
			collectedAt.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
	}

	replayed, err := es.FromHistory(t.Context(), NewMetricAggregate, replayIterator(source.UncommittedEvents()))
	if err != nil {
		t.Fatal(err)
	}

	if replayed.AggregateVersion() != 3 {
		t.Errorf("AggregateVersion = %d, want 3", replayed.AggregateVersion())
	}
	if len(replayed.Samples) != 3 {
		t.Fatalf("Samples = %d, want 3", len(replayed.Samples))
	}
	if replayed.Samples[2].Value != 30 {
		t.Errorf("last Value = %v, want 30", replayed.Samples[2].Value)
	}
	if !replayed.Samples[0].CollectedAt.Equal(collectedAt) {
		t.Errorf("CollectedAt = %v, want %v", replayed.Samples[0].CollectedAt, collectedAt)
	}
	if len(replayed.UncommittedEvents()) != 0 {
		t.Error("replayed history must not be uncommitted")
	}
}

func TestMetricLatestEmpty(t *testing.T) {
	m := NewMetricAggregate("metric-cpu-usage")
	if _, ok := m.Latest(); ok {
		t.Error("expected no latest sample on a fresh stream")
	}
}
