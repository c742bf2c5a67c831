package observability

import (
	"github.com/google/uuid"

	es "github.com/vantage-obs/eventsourcing"
)

// AlertStatus is the lifecycle state of an alert definition.
type AlertStatus string

const (
	AlertStatusActive      AlertStatus = "active"
	AlertStatusTriggered   AlertStatus = "triggered"
	AlertStatusDeactivated AlertStatus = "deactivated"
)

// AlertAggregate is an event-sourced alert definition. It is created once,
// may trigger any number of times while active, and can be deactivated.
type AlertAggregate struct {
	*es.AggregateBase

	AlertID      string
	Name         string
	Description  string
	Condition    string
	Threshold    float64
	MetricName   string
	Severity     Severity
	Status       AlertStatus
	Tags         map[string]string
	TriggerCount int
}

// NewAlertAggregate constructs an empty alert ready for replay or creation.
func NewAlertAggregate(id string) *AlertAggregate {
	a := &AlertAggregate{}
	a.AggregateBase = es.NewAggregateBase(id, es.Applier(
		es.NewApplyHandler(a.onAlertCreated),
		es.NewApplyHandler(a.onAlertTriggered),
		es.NewApplyHandler(a.onAlertDeactivated),
	))
	return a
}

// CreateAlert defines the alert. It is valid only on a fresh aggregate.
func (a *AlertAggregate) CreateAlert(name, description, condition string, threshold float64, metricName string, severity Severity, tags map[string]string, options ...es.EventOption) error {
	if a.AlertID != "" {
		return &es.ValidationError{Field: "alert", Message: "alert already created"}
	}
	if name == "" {
		return &es.ValidationError{Field: "name", Message: "alert name cannot be empty"}
	}
	if condition == "" {
		return &es.ValidationError{Field: "condition", Message: "alert condition cannot be empty"}
	}
	if metricName == "" {
		return &es.ValidationError{Field: "metric_name", Message: "alert metric name cannot be empty"}
	}
	if !severity.Valid() {
		return &es.ValidationError{Field: "severity", Message: "unknown severity"}
	}

	a.Raise(&AlertCreated{
		StreamID:    a.EntityID(),
		AlertID:     uuid.NewString(),
		Name:        name,
		Description: description,
		Condition:   condition,
		Threshold:   threshold,
		MetricName:  metricName,
		Severity:    severity,
		Tags:        tags,
	}, options...)

	return nil
}

// TriggerAlert records that a metric value crossed the threshold. Deactivated
// alerts do not trigger.
func (a *AlertAggregate) TriggerAlert(metricValue float64, options ...es.EventOption) error {
	if a.AlertID == "" {
		return &es.ValidationError{Field: "alert", Message: "alert does not exist"}
	}
	if a.Status == AlertStatusDeactivated {
		return &es.ValidationError{Field: "status", Message: "alert is deactivated"}
	}

	a.Raise(&AlertTriggered{
		StreamID:    a.EntityID(),
		AlertID:     a.AlertID,
		MetricValue: metricValue,
		Threshold:   a.Threshold,
		Severity:    a.Severity,
	}, options...)

	return nil
}

// DeactivateAlert switches the alert off.
func (a *AlertAggregate) DeactivateAlert(reason string, options ...es.EventOption) error {
	if a.AlertID == "" {
		return &es.ValidationError{Field: "alert", Message: "alert does not exist"}
	}
	if a.Status == AlertStatusDeactivated {
		return &es.ValidationError{Field: "status", Message: "alert is already deactivated"}
	}

	a.Raise(&AlertDeactivated{
		StreamID: a.EntityID(),
		AlertID:  a.AlertID,
		Reason:   reason,
	}, options...)

	return nil
}

// ShouldTrigger evaluates the alert condition against a metric value.
func (a *AlertAggregate) ShouldTrigger(value float64) bool {
	if a.Status == AlertStatusDeactivated {
		return false
	}
	switch a.Condition {
	case "gt", ">":
		return value > a.Threshold
	case "gte", ">=":
		return value >= a.Threshold
	case "lt", "<":
		return value < a.Threshold
	case "lte", "<=":
		return value <= a.Threshold
	case "eq", "==":
		return value == a.Threshold
	}
	return false
}

func (a *AlertAggregate) onAlertCreated(e *AlertCreated, _ *es.Envelope) {
	a.AlertID = e.AlertID
	a.Name = e.Name
	a.Description = e.Description
	a.Condition = e.Condition
	a.Threshold = e.Threshold
	a.MetricName = e.MetricName
	a.Severity = e.Severity
	a.Tags = e.Tags
	a.Status = AlertStatusActive
}

func (a *AlertAggregate) onAlertTriggered(e *AlertTriggered, _ *es.Envelope) {
	a.Status = AlertStatusTriggered
	a.TriggerCount++
}

func (a *AlertAggregate) onAlertDeactivated(e *AlertDeactivated, _ *es.Envelope) {
	a.Status = AlertStatusDeactivated
}
