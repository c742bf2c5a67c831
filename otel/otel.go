// Package otel decorates event stores and publishers with OpenTelemetry
// tracing and metrics.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vantage-obs/eventsourcing"
)

const (
	instrumentationName = "github.com/vantage-obs/eventsourcing"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Aggregate attributes
	AttrAggregateID = attribute.Key("eventsourcing.aggregate.id")
	AttrSequence    = attribute.Key("eventsourcing.event.sequence")

	// EventData attributes
	AttrEventType  = attribute.Key("eventsourcing.event.type")
	AttrEventID    = attribute.Key("eventsourcing.event.id")
	AttrEventCount = attribute.Key("eventsourcing.events.count")

	// Publisher attributes
	AttrSource         = attribute.Key("eventsourcing.publish.source")
	AttrSubscriberName = attribute.Key("eventsourcing.subscriber.name")

	// Error attributes
	AttrErrorType = attribute.Key("eventsourcing.error.type")

	// Operation attributes
	AttrOperation = attribute.Key("eventsourcing.operation")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(eventsourcing.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(eventsourcing.InstrumentationVersion))

	// EventStore metrics
	EventStoreAppends, _ = meter.Int64Counter(
		"eventsourcing.eventstore.appends",
		metric.WithDescription("Number of append operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreLoads, _ = meter.Int64Counter(
		"eventsourcing.eventstore.loads",
		metric.WithDescription("Number of load operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreDuration, _ = meter.Float64Histogram(
		"eventsourcing.eventstore.duration",
		metric.WithDescription("Event store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	EventStoreErrors, _ = meter.Int64Counter(
		"eventsourcing.eventstore.errors",
		metric.WithDescription("Number of event store errors"),
		metric.WithUnit("{error}"),
	)

	// EventData metrics
	EventsAppended, _ = meter.Int64Counter(
		"eventsourcing.events.appended",
		metric.WithDescription("Number of events appended to streams"),
		metric.WithUnit("{event}"),
	)

	EventsLoaded, _ = meter.Int64Counter(
		"eventsourcing.events.loaded",
		metric.WithDescription("Number of events loaded from streams"),
		metric.WithUnit("{event}"),
	)

	// Publisher metrics
	EventsPublished, _ = meter.Int64Counter(
		"eventsourcing.events.published",
		metric.WithDescription("Number of committed events handed to the publisher"),
		metric.WithUnit("{event}"),
	)

	PublishDuration, _ = meter.Float64Histogram(
		"eventsourcing.publisher.duration",
		metric.WithDescription("Publish duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	PublishErrors, _ = meter.Int64Counter(
		"eventsourcing.publisher.errors",
		metric.WithDescription("Number of publish failures"),
		metric.WithUnit("{error}"),
	)

	// Handler metrics
	EventsHandled, _ = meter.Int64Counter(
		"eventsourcing.events.handled",
		metric.WithDescription("Number of events handled by subscribers"),
		metric.WithUnit("{event}"),
	)

	HandlerDuration, _ = meter.Float64Histogram(
		"eventsourcing.handler.duration",
		metric.WithDescription("Event handler duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	HandlerErrors, _ = meter.Int64Counter(
		"eventsourcing.handler.errors",
		metric.WithDescription("Number of event handler errors"),
		metric.WithUnit("{error}"),
	)

	// System metrics
	ConcurrencyConflicts, _ = meter.Int64Counter(
		"eventsourcing.concurrency.conflicts",
		metric.WithDescription("Number of optimistic-concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	StreamVersionGauge, _ = meter.Int64Gauge(
		"eventsourcing.stream.version",
		metric.WithDescription("Latest sequence observed per stream"),
		metric.WithUnit("{version}"),
	)
)
