package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/caarlos0/env/v10"

	cqrs "github.com/vantage-obs/eventsourcing"
)

// Config holds the EventBridge publisher configuration. Publish failures are
// forwarded to the error bus so operators can alert on them without touching
// the primary bus.
type Config struct {
	BusName      string `env:"EVENT_BUS_NAME" envDefault:"vantage-events"`
	ErrorBusName string `env:"ERROR_BUS_NAME" envDefault:"vantage-errors"`
	Region       string `env:"AWS_REGION" envDefault:"us-east-1"`
}

// ConfigFromEnv loads the publisher configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse eventbridge config: %w", err)
	}
	return cfg, nil
}

// Publisher sends committed events to an EventBridge bus. The append that
// preceded a publish is durable regardless of the publish outcome, so
// failures are reported on the error channel and mirrored to the error bus,
// never rolled back.
type Publisher struct {
	client   *eventbridge.Client
	bus      string
	errorBus string
	errs     chan error
}

var _ cqrs.Publisher = (*Publisher)(nil)

// New creates a publisher on an existing client.
func New(client *eventbridge.Client, cfg Config) *Publisher {
	return &Publisher{
		client:   client,
		bus:      cfg.BusName,
		errorBus: cfg.ErrorBusName,
		errs:     make(chan error, 64),
	}
}

// NewFromEnv builds the client from the default AWS config chain plus the
// environment Config.
func NewFromEnv(ctx context.Context) (*Publisher, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return New(eventbridge.NewFromConfig(awsCfg), cfg), nil
}

// Publish sends one committed envelope. The outgoing entry carries
// {source, type, payload, target ids}: Source is the supplied tag, DetailType
// the event type, Detail the full persisted record, Resources the aggregate id.
func (p *Publisher) Publish(ctx context.Context, envlp *cqrs.Envelope, source string) error {
	rec, err := cqrs.EncodeRecord(envlp)
	if err != nil {
		p.reportError(ctx, envlp, source, err)
		return err
	}

	detail, err := json.Marshal(rec)
	if err != nil {
		p.reportError(ctx, envlp, source, err)
		return err
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				Source:       aws.String(source),
				DetailType:   aws.String(cqrs.TypeName(envlp.Event)),
				Detail:       aws.String(string(detail)),
				EventBusName: aws.String(p.bus),
				Resources:    []string{envlp.AggregateID},
			},
		},
	})
	if err != nil {
		p.reportError(ctx, envlp, source, err)
		return fmt.Errorf("publish event %s: %w", envlp.EventID, err)
	}

	if out.FailedEntryCount > 0 {
		message := "unknown error"
		if len(out.Entries) > 0 && out.Entries[0].ErrorMessage != nil {
			message = *out.Entries[0].ErrorMessage
		}
		err := fmt.Errorf("publish event %s: %s", envlp.EventID, message)
		p.reportError(ctx, envlp, source, err)
		return err
	}

	return nil
}

// Errors returns the channel where publish failures are sent.
func (p *Publisher) Errors() <-chan error {
	return p.errs
}

// Close stops the publisher. It holds no connections of its own.
func (p *Publisher) Close() error {
	close(p.errs)
	return nil
}

// reportError pushes the failure onto the error channel and mirrors it to the
// error bus, best effort.
func (p *Publisher) reportError(ctx context.Context, envlp *cqrs.Envelope, source string, cause error) {
	select {
	case p.errs <- cause:
	default:
		// Drop error if channel full
	}

	errorDetail, err := json.Marshal(map[string]any{
		"error_message":       cause.Error(),
		"original_event_id":   envlp.EventID.String(),
		"original_event_type": cqrs.TypeName(envlp.Event),
		"aggregate_id":        envlp.AggregateID,
		"correlation_id":      envlp.CorrelationID,
		"timestamp":           time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}

	_, _ = p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				Source:       aws.String(source + ".error"),
				DetailType:   aws.String("Publish Failed"),
				Detail:       aws.String(string(errorDetail)),
				EventBusName: aws.String(p.errorBus),
			},
		},
	})
}
