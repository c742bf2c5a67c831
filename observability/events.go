// Package observability contains the event-sourced aggregates of the
// observability domain: metric streams and alert definitions. All state is
// derived from events; the operations here only validate and raise.
package observability

import (
	"time"

	es "github.com/vantage-obs/eventsourcing"
)

func init() {
	es.RegisterEventByType(func() es.Event { return &MetricCollected{} })
	es.RegisterEventByType(func() es.Event { return &AlertCreated{} })
	es.RegisterEventByType(func() es.Event { return &AlertTriggered{} })
	es.RegisterEventByType(func() es.Event { return &AlertDeactivated{} })
}

// MetricCollected records one observed metric sample.
type MetricCollected struct {
	StreamID    string            `json:"aggregate_id"`
	MetricID    string            `json:"metric_id"`
	Name        string            `json:"name"`
	Value       float64           `json:"value"`
	Unit        string            `json:"unit"`
	Source      string            `json:"source"`
	Tags        map[string]string `json:"tags,omitempty"`
	CollectedAt time.Time         `json:"collected_at"`
}

func (e *MetricCollected) AggregateID() string { return e.StreamID }
func (e *MetricCollected) EventType() string   { return "MetricCollected" }

// AlertCreated records the definition of a new alert.
type AlertCreated struct {
	StreamID    string            `json:"aggregate_id"`
	AlertID     string            `json:"alert_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Condition   string            `json:"condition"`
	Threshold   float64           `json:"threshold"`
	MetricName  string            `json:"metric_name"`
	Severity    Severity          `json:"severity"`
	Tags        map[string]string `json:"tags,omitempty"`
}

func (e *AlertCreated) AggregateID() string { return e.StreamID }
func (e *AlertCreated) EventType() string   { return "AlertCreated" }

// AlertTriggered records that a metric value crossed an alert's threshold.
type AlertTriggered struct {
	StreamID    string   `json:"aggregate_id"`
	AlertID     string   `json:"alert_id"`
	MetricValue float64  `json:"metric_value"`
	Threshold   float64  `json:"threshold"`
	Severity    Severity `json:"severity"`
}

func (e *AlertTriggered) AggregateID() string { return e.StreamID }
func (e *AlertTriggered) EventType() string   { return "AlertTriggered" }

// AlertDeactivated records that an alert was switched off.
type AlertDeactivated struct {
	StreamID string `json:"aggregate_id"`
	AlertID  string `json:"alert_id"`
	Reason   string `json:"reason,omitempty"`
}

func (e *AlertDeactivated) AggregateID() string { return e.StreamID }
func (e *AlertDeactivated) EventType() string   { return "AlertDeactivated" }

// Severity classifies alerts and security findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}
