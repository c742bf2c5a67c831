package observability

import (
	"time"

	"github.com/google/uuid"

	es "github.com/vantage-obs/eventsourcing"
)

// MetricSample is one replayed observation in a metric stream.
type MetricSample struct {
	MetricID    string
	Value       float64
	Unit        string
	Source      string
	Tags        map[string]string
	CollectedAt time.Time
}

// MetricAggregate is the event-sourced stream of samples for one named metric.
// Its identity is the metric stream id; every collected sample becomes one
// event on the stream.
type MetricAggregate struct {
	*es.AggregateBase

	Name    string
	Unit    string
	Samples []MetricSample
}

// NewMetricAggregate constructs an empty metric stream ready for replay or for
// collecting new samples.
func NewMetricAggregate(id string) *MetricAggregate {
	a := &MetricAggregate{}
	a.AggregateBase = es.NewAggregateBase(id, es.Applier(
		es.NewApplyHandler(a.onMetricCollected),
	))
	return a
}

// CollectMetric validates and records one sample. The zero CollectedAt means
// "now".
func (a *MetricAggregate) CollectMetric(name string, value float64, unit, source string, tags map[string]string, collectedAt time.Time, options ...es.EventOption) error {
	if name == "" {
		return &es.ValidationError{Field: "name", Message: "metric name cannot be empty"}
	}
	if unit == "" {
		return &es.ValidationError{Field: "unit", Message: "metric unit cannot be empty"}
	}
	if source == "" {
		return &es.ValidationError{Field: "source", Message: "metric source cannot be empty"}
	}
	if a.Name != "" && a.Name != name {
		return &es.ValidationError{Field: "name", Message: "metric name does not match this stream"}
	}
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}

	a.Raise(&MetricCollected{
		StreamID:    a.EntityID(),
		MetricID:    uuid.NewString(),
		Name:        name,
		Value:       value,
		Unit:        unit,
		Source:      source,
		Tags:        tags,
		CollectedAt: collectedAt,
	}, options...)

	return nil
}

// Latest returns the most recently collected sample, if any.
func (a *MetricAggregate) Latest() (MetricSample, bool) {
	if len(a.Samples) == 0 {
		return MetricSample{}, false
	}
	return a.Samples[len(a.Samples)-1], true
}

func (a *MetricAggregate) onMetricCollected(e *MetricCollected, _ *es.Envelope) {
	a.Name = e.Name
	a.Unit = e.Unit
	a.Samples = append(a.Samples, MetricSample{
		MetricID:    e.MetricID,
		Value:       e.Value,
		Unit:        e.Unit,
		Source:      e.Source,
		Tags:        e.Tags,
		CollectedAt: e.CollectedAt,
	})
}
