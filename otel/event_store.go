package otel

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vantage-obs/eventsourcing"
)

var _ eventsourcing.EventStore = (*TelemetryStore)(nil)

// TelemetryStore wraps an EventStore with OpenTelemetry tracing and metrics.
// The append span's trace context is injected into the envelope metadata so
// downstream consumers can link their spans back to the producer.
type TelemetryStore struct {
	next eventsourcing.EventStore
	cfg  *config
}

// WithEventStoreTelemetry wraps an event store with tracing and metrics.
func WithEventStoreTelemetry(next eventsourcing.EventStore, options ...Option) *TelemetryStore {
	cfg := &config{}
	for _, o := range options {
		o.apply(cfg)
	}
	return &TelemetryStore{next: next, cfg: cfg}
}

func (t *TelemetryStore) Append(ctx context.Context, envlp eventsourcing.Envelope, expect eventsourcing.Expect) (eventsourcing.AppendResult, error) {
	ctx, span := tracer.Start(ctx, "EventStore.Append",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.cfg.spanAttributes(ctx, []attribute.KeyValue{
			AttrOperation.String("append"),
			AttrAggregateID.String(envlp.AggregateID),
			AttrEventType.String(eventsourcing.TypeName(envlp.Event)),
		})...),
	)
	defer span.End()

	{
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		if len(carrier) > 0 {
			if envlp.Metadata == nil {
				envlp.Metadata = make(map[string]any, len(carrier))
			}
			for key, value := range carrier {
				envlp.Metadata[key] = value
			}
		}
	}

	start := time.Now()
	result, err := t.next.Append(ctx, envlp, expect)
	duration := time.Since(start)

	EventStoreDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(AttrOperation.String("append")),
	)
	EventStoreAppends.Add(ctx, 1)

	switch {
	case eventsourcing.IsConflict(err):
		ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(
			AttrAggregateID.String(envlp.AggregateID),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case err != nil:
		EventStoreErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		EventsAppended.Add(ctx, 1)
		StreamVersionGauge.Record(ctx, int64(result.Sequence), metric.WithAttributes(
			AttrAggregateID.String(envlp.AggregateID),
		))
		span.SetAttributes(AttrSequence.Int64(int64(result.Sequence)))
	}

	return result, err
}

// LoadStream with inline tracing middleware
func (t *TelemetryStore) LoadStream(ctx context.Context, id string) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
	return t.loadStream(ctx, "EventStore.LoadStream", id, func(ctx context.Context) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
		return t.next.LoadStream(ctx, id)
	})
}

// LoadStreamFrom with inline tracing middleware
func (t *TelemetryStore) LoadStreamFrom(ctx context.Context, id string, from uint64) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
	return t.loadStream(ctx, "EventStore.LoadStreamFrom", id, func(ctx context.Context) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
		return t.next.LoadStreamFrom(ctx, id, from)
	})
}

func (t *TelemetryStore) loadStream(
	ctx context.Context,
	operation string,
	id string,
	load func(ctx context.Context) (*eventsourcing.Iterator[*eventsourcing.Envelope], error),
) (*eventsourcing.Iterator[*eventsourcing.Envelope], error) {
	iter, err := load(ctx)
	if err != nil {
		EventStoreErrors.Add(ctx, 1)
		return iter, err
	}

	EventStoreLoads.Add(ctx, 1)

	started := false
	var startedAt time.Time
	var replaySpan trace.Span
	var eventCount int64

	return eventsourcing.NewIteratorFunc(func(ctx context.Context) (*eventsourcing.Envelope, error) {
		if !started {
			started = true
			startedAt = time.Now()
			ctx, replaySpan = tracer.Start(ctx, operation,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(t.cfg.spanAttributes(ctx, []attribute.KeyValue{
					AttrAggregateID.String(id),
				})...),
			)
		}

		if !iter.Next(ctx) {
			replaySpan.SetAttributes(AttrEventCount.Int64(eventCount))

			err := iter.Err()
			if err == nil {
				EventStoreDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()),
					metric.WithAttributes(AttrOperation.String("load")),
				)
				replaySpan.End()
				return nil, io.EOF
			}

			EventStoreErrors.Add(ctx, 1)
			replaySpan.RecordError(err)
			replaySpan.SetStatus(codes.Error, err.Error())
			replaySpan.End()
			return nil, err
		}

		eventCount++
		EventsLoaded.Add(ctx, 1)

		return iter.Value(), nil
	}), nil
}

func (t *TelemetryStore) LatestSequence(ctx context.Context, id string) (uint64, error) {
	latest, err := t.next.LatestSequence(ctx, id)
	if err != nil {
		EventStoreErrors.Add(ctx, 1)
	}
	return latest, err
}

// Close just forwards
func (t *TelemetryStore) Close() error {
	return t.next.Close()
}
