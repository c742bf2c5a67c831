package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vantage-obs/eventsourcing"
)

// WithEventTelemetry wraps an event handler with a consumer span and metrics.
// Trace context injected into the envelope metadata at append time is
// extracted and linked, so the consumer span correlates with the producer
// trace even across a broker.
func WithEventTelemetry(name string, next eventsourcing.EventHandler, options ...Option) eventsourcing.EventHandler {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}

	return eventsourcing.NewEventHandlerFunc(func(ctx context.Context, envlp *eventsourcing.Envelope) error {
		carrier := make(propagation.MapCarrier)
		for k, v := range envlp.Metadata {
			if stringV, ok := v.(string); ok && len(stringV) > 0 {
				carrier[k] = stringV
			}
		}

		originalCtx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)
		originalSpanContext := trace.SpanContextFromContext(originalCtx)

		eventType := eventsourcing.TypeName(envlp.Event)

		attrs := cfg.spanAttributes(ctx, []attribute.KeyValue{
			AttrEventType.String(eventType),
			AttrEventID.String(envlp.EventID.String()),
			AttrSequence.Int64(int64(envlp.Sequence)),
			AttrAggregateID.String(envlp.AggregateID),
			AttrSubscriberName.String(name),
		})

		ctx, span := tracer.Start(ctx, fmt.Sprintf("events.handle %s", eventType),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithLinks(trace.Link{
				SpanContext: originalSpanContext,
				Attributes: []attribute.KeyValue{
					attribute.String("link.reason", "event.consumed.from.stream"),
				},
			}),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		EventsHandled.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))

		startTime := time.Now()
		err := next.Handle(ctx, envlp)
		HandlerDuration.Record(ctx,
			float64(time.Since(startTime).Milliseconds()),
			metric.WithAttributes(AttrEventType.String(eventType)),
		)

		if err != nil {
			var skipped *eventsourcing.ErrSkippedEvent
			if errors.As(err, &skipped) {
				span.SetStatus(codes.Ok, "event skipped")
			} else {
				HandlerErrors.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
			}
			return err
		}

		span.SetStatus(codes.Ok, "")
		return nil
	})
}
