package projection

import (
	"testing"
	"time"

	es "github.com/vantage-obs/eventsourcing"
	"github.com/vantage-obs/eventsourcing/fixtures"
	"github.com/vantage-obs/eventsourcing/observability"
)

func collectedEnvelope(t *testing.T, seq uint64, value float64, collectedAt time.Time) *es.Envelope {
	t.Helper()
	return fixtures.NewEnvelope(&observability.MetricCollected{
		StreamID:    "metric-cpu-usage",
		MetricID:    "m-1",
		Name:        "cpu.usage",
		Value:       value,
		Unit:        "percent",
		Source:      "host-1",
		CollectedAt: collectedAt,
	}, fixtures.WithSequence(seq))
}

func TestProjectorFoldsMetricSummary(t *testing.T) {
	p := NewProjector()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, v := range []float64{50, 90, 70} {
		envlp := collectedEnvelope(t, uint64(i+1), v, base.Add(time.Duration(i)*time.Minute))
		if err := p.Handle(t.Context(), envlp); err != nil {
			t.Fatal(err)
		}
	}

	summary, ok := p.Summary("cpu.usage")
	if !ok {
		t.Fatal("expected a summary for cpu.usage")
	}

	if summary.Count != 3 {
		t.Errorf("Count = %d, want 3", summary.Count)
	}
	if summary.Min != 50 || summary.Max != 90 {
		t.Errorf("Min/Max = %v/%v, want 50/90", summary.Min, summary.Max)
	}
	if summary.Last != 70 {
		t.Errorf("Last = %v, want 70", summary.Last)
	}
	if want := 70.0; summary.Average() != want {
		t.Errorf("Average = %v, want %v", summary.Average(), want)
	}
	if summary.Unit != "percent" {
		t.Errorf("Unit = %q", summary.Unit)
	}
	if !summary.LastCollectedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("LastCollectedAt = %v", summary.LastCollectedAt)
	}
}

func TestProjectorFoldsAlertLifecycle(t *testing.T) {
	p := NewProjector()

	created := fixtures.NewEnvelope(&observability.AlertCreated{
		StreamID:   "alert-cpu-high",
		AlertID:    "a-1",
		Name:       "cpu high",
		MetricName: "cpu.usage",
		Condition:  "gt",
		Threshold:  90,
		Severity:   observability.SeverityHigh,
	}, fixtures.WithSequence(1))
	if err := p.Handle(t.Context(), created); err != nil {
		t.Fatal(err)
	}

	view, ok := p.Alert("alert-cpu-high")
	if !ok {
		t.Fatal("expected an alert view")
	}
	if view.Status != observability.AlertStatusActive {
		t.Errorf("Status = %q, want active", view.Status)
	}

	triggered := fixtures.NewEnvelope(&observability.AlertTriggered{
		StreamID:    "alert-cpu-high",
		AlertID:     "a-1",
		MetricValue: 95,
		Threshold:   90,
		Severity:    observability.SeverityHigh,
	}, fixtures.WithSequence(2))
	if err := p.Handle(t.Context(), triggered); err != nil {
		t.Fatal(err)
	}

	view, _ = p.Alert("alert-cpu-high")
	if view.Status != observability.AlertStatusTriggered {
		t.Errorf("Status = %q, want triggered", view.Status)
	}
	if view.TriggerCount != 1 {
		t.Errorf("TriggerCount = %d, want 1", view.TriggerCount)
	}
	if view.LastTriggered.IsZero() {
		t.Error("expected LastTriggered to be stamped")
	}

	deactivated := fixtures.NewEnvelope(&observability.AlertDeactivated{
		StreamID: "alert-cpu-high",
		AlertID:  "a-1",
		Reason:   "resolved",
	}, fixtures.WithSequence(3))
	if err := p.Handle(t.Context(), deactivated); err != nil {
		t.Fatal(err)
	}

	view, _ = p.Alert("alert-cpu-high")
	if view.Status != observability.AlertStatusDeactivated {
		t.Errorf("Status = %q, want deactivated", view.Status)
	}
}

func TestProjectorSkipsUnknownEvents(t *testing.T) {
	p := NewProjector()

	envlp := fixtures.NewEnvelope(fixtures.NewTestEvent().WithType("SomethingElse").Build())
	if err := p.Handle(t.Context(), envlp); err != nil {
		t.Fatalf("unknown events must be skipped silently, got %v", err)
	}

	if len(p.Summaries()) != 0 || len(p.Alerts()) != 0 {
		t.Error("unknown events must not touch the read models")
	}
}

func TestProjectorTriggerWithoutCreationIsIgnored(t *testing.T) {
	p := NewProjector()

	triggered := fixtures.NewEnvelope(&observability.AlertTriggered{
		StreamID: "alert-unknown",
		AlertID:  "a-x",
	})
	if err := p.Handle(t.Context(), triggered); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Alert("alert-unknown"); ok {
		t.Error("trigger without creation must not materialize a view")
	}
}

func TestProjectorSummaryMissing(t *testing.T) {
	p := NewProjector()
	if _, ok := p.Summary("never-seen"); ok {
		t.Error("expected no summary for unknown metric")
	}
}

func TestProjectorListings(t *testing.T) {
	p := NewProjector()
	base := time.Now().UTC()

	if err := p.Handle(t.Context(), collectedEnvelope(t, 1, 10, base)); err != nil {
		t.Fatal(err)
	}
	memory := fixtures.NewEnvelope(&observability.MetricCollected{
		StreamID:    "metric-mem-usage",
		MetricID:    "m-2",
		Name:        "mem.usage",
		Value:       40,
		Unit:        "percent",
		Source:      "host-1",
		CollectedAt: base,
	})
	if err := p.Handle(t.Context(), memory); err != nil {
		t.Fatal(err)
	}

	if got := len(p.Summaries()); got != 2 {
		t.Errorf("Summaries = %d, want 2", got)
	}
}

type unknownQuery struct{}

func (q unknownQuery) ID() []byte { return []byte("unknown") }

func TestQueryProviderUnknownQuery(t *testing.T) {
	qp := NewQueryProvider(NewProjector())
	if err := qp.Handle(t.Context(), unknownQuery{}, nil); err == nil {
		t.Fatal("expected error for unregistered query type")
	}
}

func TestListProviderUnknownQuery(t *testing.T) {
	lp := NewListProvider(NewProjector())
	if err := lp.Handle(t.Context(), unknownQuery{}, nil); err == nil {
		t.Fatal("expected error for unregistered query type")
	}
}
