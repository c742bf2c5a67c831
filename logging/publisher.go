package logging

import (
	"context"
	"log/slog"

	cqrs "github.com/vantage-obs/eventsourcing"
)

type loggingPublisher struct {
	logger *slog.Logger
	next   cqrs.Publisher
}

// WithPublisherLogging wraps a publisher with debug/error logging of each
// published envelope.
func WithPublisherLogging(logger *slog.Logger, next cqrs.Publisher) cqrs.Publisher {
	return &loggingPublisher{logger: logger, next: next}
}

func (p *loggingPublisher) Publish(ctx context.Context, envlp *cqrs.Envelope, source string) error {
	l := p.logger.With(
		"aggregate-id", envlp.AggregateID,
		"event-id", envlp.EventID,
		"event-type", cqrs.TypeName(envlp.Event),
		"source", source,
	)

	err := p.next.Publish(ctx, envlp, source)

	if err != nil {
		l.ErrorContext(ctx, "publish failed", "error", err)
	} else {
		l.DebugContext(ctx, "event published")
	}

	return err
}

func (p *loggingPublisher) Errors() <-chan error {
	return p.next.Errors()
}

func (p *loggingPublisher) Close() error {
	return p.next.Close()
}
