package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vantage-obs/eventsourcing"
)

var _ eventsourcing.Publisher = (*TelemetryPublisher)(nil)

// TelemetryPublisher wraps a Publisher with OpenTelemetry tracing and metrics.
type TelemetryPublisher struct {
	next eventsourcing.Publisher
	cfg  *config
}

// WithPublisherTelemetry wraps a publisher with tracing and metrics.
func WithPublisherTelemetry(next eventsourcing.Publisher, options ...Option) *TelemetryPublisher {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}
	return &TelemetryPublisher{next: next, cfg: cfg}
}

func (t *TelemetryPublisher) Publish(ctx context.Context, envlp *eventsourcing.Envelope, source string) error {
	ctx, span := tracer.Start(ctx, "Publisher.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(t.cfg.spanAttributes(ctx, []attribute.KeyValue{
			AttrEventType.String(eventsourcing.TypeName(envlp.Event)),
			AttrEventID.String(envlp.EventID.String()),
			AttrAggregateID.String(envlp.AggregateID),
			AttrSource.String(source),
		})...),
	)
	defer span.End()

	start := time.Now()
	err := t.next.Publish(ctx, envlp, source)
	PublishDuration.Record(ctx,
		float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrEventType.String(eventsourcing.TypeName(envlp.Event))),
	)

	if err != nil {
		PublishErrors.Add(ctx, 1, metric.WithAttributes(
			AttrEventType.String(eventsourcing.TypeName(envlp.Event)),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	EventsPublished.Add(ctx, 1, metric.WithAttributes(
		AttrEventType.String(eventsourcing.TypeName(envlp.Event)),
	))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (t *TelemetryPublisher) Errors() <-chan error {
	return t.next.Errors()
}

func (t *TelemetryPublisher) Close() error {
	return t.next.Close()
}
