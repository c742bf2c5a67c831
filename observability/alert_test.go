package observability

import (
	"errors"
	"testing"

	es "github.com/vantage-obs/eventsourcing"
)

func createdAlert(t *testing.T) *AlertAggregate {
	t.Helper()
	a := NewAlertAggregate("alert-cpu-high")
	err := a.CreateAlert("cpu high", "fires above 90%", "gt", 90, "cpu.usage",
		SeverityHigh, map[string]string{"team": "platform"})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestCreateAlert(t *testing.T) {
	a := createdAlert(t)

	if a.AlertID == "" {
		t.Error("expected a generated alert id")
	}
	if a.Status != AlertStatusActive {
		t.Errorf("Status = %q, want active", a.Status)
	}
	if a.Threshold != 90 || a.Condition != "gt" {
		t.Errorf("Condition = %q %v", a.Condition, a.Threshold)
	}
	if a.Severity != SeverityHigh {
		t.Errorf("Severity = %q", a.Severity)
	}
	if len(a.UncommittedEvents()) != 1 {
		t.Errorf("UncommittedEvents = %d, want 1", len(a.UncommittedEvents()))
	}
}

func TestCreateAlertValidation(t *testing.T) {
	tests := []struct {
		name       string
		alertName  string
		condition  string
		metricName string
		severity   Severity
	}{
		{"empty name", "", "gt", "cpu.usage", SeverityHigh},
		{"empty condition", "cpu high", "", "cpu.usage", SeverityHigh},
		{"empty metric", "cpu high", "gt", "", SeverityHigh},
		{"unknown severity", "cpu high", "gt", "cpu.usage", Severity("urgent")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAlertAggregate("alert-1")
			err := a.CreateAlert(tt.alertName, "", tt.condition, 1, tt.metricName, tt.severity, nil)

			var validation *es.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(a.UncommittedEvents()) != 0 {
				t.Error("validation failure must not raise an event")
			}
		})
	}
}

func TestCreateAlertTwice(t *testing.T) {
	a := createdAlert(t)

	err := a.CreateAlert("again", "", "gt", 1, "cpu.usage", SeverityLow, nil)
	var validation *es.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTriggerAlert(t *testing.T) {
	a := createdAlert(t)

	if err := a.TriggerAlert(95.2); err != nil {
		t.Fatal(err)
	}
	if err := a.TriggerAlert(99.9); err != nil {
		t.Fatal(err)
	}

	if a.Status != AlertStatusTriggered {
		t.Errorf("Status = %q, want triggered", a.Status)
	}
	if a.TriggerCount != 2 {
		t.Errorf("TriggerCount = %d, want 2", a.TriggerCount)
	}

	uncommitted := a.UncommittedEvents()
	if len(uncommitted) != 3 {
		t.Fatalf("UncommittedEvents = %d, want 3", len(uncommitted))
	}
	ev, ok := uncommitted[1].Event.(*AlertTriggered)
	if !ok {
		t.Fatalf("event is %T", uncommitted[1].Event)
	}
	if ev.MetricValue != 95.2 || ev.Threshold != 90 {
		t.Errorf("trigger event = %+v", ev)
	}
}

func TestTriggerAlertBeforeCreation(t *testing.T) {
	a := NewAlertAggregate("alert-1")
	if err := a.TriggerAlert(1); err == nil {
		t.Fatal("expected error for trigger before creation")
	}
}

func TestDeactivateAlert(t *testing.T) {
	a := createdAlert(t)

	if err := a.DeactivateAlert("maintenance window"); err != nil {
		t.Fatal(err)
	}
	if a.Status != AlertStatusDeactivated {
		t.Errorf("Status = %q, want deactivated", a.Status)
	}

	if err := a.TriggerAlert(100); err == nil {
		t.Fatal("deactivated alerts must not trigger")
	}
	if err := a.DeactivateAlert("again"); err == nil {
		t.Fatal("expected error for double deactivation")
	}
}

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		condition string
		threshold float64
		value     float64
		want      bool
	}{
		{"gt", 90, 91, true},
		{"gt", 90, 90, false},
		{">", 90, 95, true},
		{"gte", 90, 90, true},
		{">=", 90, 89, false},
		{"lt", 10, 5, true},
		{"<", 10, 10, false},
		{"lte", 10, 10, true},
		{"<=", 10, 11, false},
		{"eq", 42, 42, true},
		{"==", 42, 41, false},
		{"unknown", 1, 1, false},
	}

	for _, tt := range tests {
		a := NewAlertAggregate("alert-1")
		if err := a.CreateAlert("a", "", tt.condition, tt.threshold, "m", SeverityLow, nil); err != nil {
			// Conditions are free-form strings at creation; evaluation decides.
			t.Fatal(err)
		}
		if got := a.ShouldTrigger(tt.value); got != tt.want {
			t.Errorf("ShouldTrigger(%q %v, %v) = %v, want %v",
				tt.condition, tt.threshold, tt.value, got, tt.want)
		}
	}
}

func TestShouldTriggerWhenDeactivated(t *testing.T) {
	a := createdAlert(t)
	if err := a.DeactivateAlert(""); err != nil {
		t.Fatal(err)
	}
	if a.ShouldTrigger(100) {
		t.Error("deactivated alerts must never evaluate true")
	}
}

func TestAlertReplay(t *testing.T) {
	source := createdAlert(t)
	if err := source.TriggerAlert(95); err != nil {
		t.Fatal(err)
	}
	if err := source.DeactivateAlert("resolved upstream"); err != nil {
		t.Fatal(err)
	}

	replayed, err := es.FromHistory(t.Context(), NewAlertAggregate, replayIterator(source.UncommittedEvents()))
	if err != nil {
		t.Fatal(err)
	}

	if replayed.Status != AlertStatusDeactivated {
		t.Errorf("Status = %q, want deactivated", replayed.Status)
	}
	if replayed.TriggerCount != 1 {
		t.Errorf("TriggerCount = %d, want 1", replayed.TriggerCount)
	}
	if replayed.AlertID != source.AlertID {
		t.Errorf("AlertID = %q, want %q", replayed.AlertID, source.AlertID)
	}
	if replayed.AggregateVersion() != 3 {
		t.Errorf("AggregateVersion = %d, want 3", replayed.AggregateVersion())
	}
}
