// Package projection maintains in-memory read models from committed events
// and exposes them through query handlers.
package projection

import (
	"context"
	"errors"
	"sync"
	"time"

	es "github.com/vantage-obs/eventsourcing"
	"github.com/vantage-obs/eventsourcing/observability"
)

// MetricSummary is the read model for one metric name: running aggregates
// over every sample projected so far.
type MetricSummary struct {
	StreamID        string
	Name            string
	Unit            string
	Count           int
	Sum             float64
	Min             float64
	Max             float64
	Last            float64
	LastCollectedAt time.Time
	UpdatedAt       time.Time
}

// Average returns the mean of all projected samples.
func (s MetricSummary) Average() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// AlertView is the read model for one alert definition.
type AlertView struct {
	StreamID      string
	AlertID       string
	Name          string
	MetricName    string
	Condition     string
	Threshold     float64
	Severity      observability.Severity
	Status        observability.AlertStatus
	TriggerCount  int
	LastTriggered time.Time
	UpdatedAt     time.Time
}

// Projector folds observability events into metric summaries and alert views.
// It is an EventHandler and can be subscribed to any bus backend directly.
type Projector struct {
	mu        sync.RWMutex
	summaries map[string]*MetricSummary
	alerts    map[string]*AlertView

	group *es.EventGroupProcessor
}

// NewProjector constructs an empty projector.
func NewProjector() *Projector {
	p := &Projector{
		summaries: make(map[string]*MetricSummary),
		alerts:    make(map[string]*AlertView),
	}
	p.group = es.NewEventGroupProcessor(
		es.OnEvent(p.onMetricCollected),
		es.OnEvent(p.onAlertCreated),
		es.OnEvent(p.onAlertTriggered),
		es.OnEvent(p.onAlertDeactivated),
	)
	return p
}

// Handle folds one envelope into the read models. Events outside the group
// are skipped, not failed.
func (p *Projector) Handle(ctx context.Context, envlp *es.Envelope) error {
	err := p.group.Handle(ctx, envlp)
	var skipped *es.ErrSkippedEvent
	if err != nil && errors.As(err, &skipped) {
		return nil
	}
	return err
}

// Summary returns the read model for a metric name.
func (p *Projector) Summary(name string) (MetricSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.summaries[name]
	if !ok {
		return MetricSummary{}, false
	}
	return *s, true
}

// Summaries returns every metric summary, in unspecified order.
func (p *Projector) Summaries() []MetricSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]MetricSummary, 0, len(p.summaries))
	for _, s := range p.summaries {
		out = append(out, *s)
	}
	return out
}

// Alert returns the read model for an alert stream.
func (p *Projector) Alert(streamID string) (AlertView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.alerts[streamID]
	if !ok {
		return AlertView{}, false
	}
	return *v, true
}

// Alerts returns every alert view, in unspecified order.
func (p *Projector) Alerts() []AlertView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]AlertView, 0, len(p.alerts))
	for _, v := range p.alerts {
		out = append(out, *v)
	}
	return out
}

func (p *Projector) onMetricCollected(ctx context.Context, e *observability.MetricCollected, envlp *es.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.summaries[e.Name]
	if !ok {
		s = &MetricSummary{
			StreamID: envlp.AggregateID,
			Name:     e.Name,
			Unit:     e.Unit,
			Min:      e.Value,
			Max:      e.Value,
		}
		p.summaries[e.Name] = s
	}

	s.Count++
	s.Sum += e.Value
	if e.Value < s.Min {
		s.Min = e.Value
	}
	if e.Value > s.Max {
		s.Max = e.Value
	}
	s.Last = e.Value
	s.LastCollectedAt = e.CollectedAt
	s.UpdatedAt = envlp.OccurredAt

	return nil
}

func (p *Projector) onAlertCreated(ctx context.Context, e *observability.AlertCreated, envlp *es.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.alerts[envlp.AggregateID] = &AlertView{
		StreamID:   envlp.AggregateID,
		AlertID:    e.AlertID,
		Name:       e.Name,
		MetricName: e.MetricName,
		Condition:  e.Condition,
		Threshold:  e.Threshold,
		Severity:   e.Severity,
		Status:     observability.AlertStatusActive,
		UpdatedAt:  envlp.OccurredAt,
	}

	return nil
}

func (p *Projector) onAlertTriggered(ctx context.Context, e *observability.AlertTriggered, envlp *es.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.alerts[envlp.AggregateID]
	if !ok {
		return nil
	}
	v.Status = observability.AlertStatusTriggered
	v.TriggerCount++
	v.LastTriggered = envlp.OccurredAt
	v.UpdatedAt = envlp.OccurredAt

	return nil
}

func (p *Projector) onAlertDeactivated(ctx context.Context, e *observability.AlertDeactivated, envlp *es.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.alerts[envlp.AggregateID]
	if !ok {
		return nil
	}
	v.Status = observability.AlertStatusDeactivated
	v.UpdatedAt = envlp.OccurredAt

	return nil
}
