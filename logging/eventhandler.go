// Package logging provides slog middleware for event handlers, stores and
// publishers.
package logging

import (
	"context"
	"log/slog"

	cqrs "github.com/vantage-obs/eventsourcing"
)

// WithLoggingMiddleware wraps an event handler with debug/error logging of
// each processed envelope.
func WithLoggingMiddleware(logger *slog.Logger, next cqrs.EventHandler) cqrs.EventHandler {
	return cqrs.NewEventHandlerFunc(func(ctx context.Context, envlp *cqrs.Envelope) error {
		l := logger.With(
			"aggregate-id", envlp.AggregateID,
			"event-id", envlp.EventID,
			"event-type", cqrs.TypeName(envlp.Event),
			"sequence", envlp.Sequence,
			"correlation-id", envlp.CorrelationID,
		)

		l.DebugContext(ctx, "event processing started")

		err := next.Handle(ctx, envlp)

		if err != nil {
			l.ErrorContext(ctx, "error processing event", "error", err)
		} else {
			l.DebugContext(ctx, "event processed successfully")
		}

		return err
	})
}
