package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	cqrs "github.com/vantage-obs/eventsourcing"
)

// Config holds the Redis Streams publisher configuration.
type Config struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Stream   string `env:"REDIS_EVENT_STREAM" envDefault:"events"`
	Group    string `env:"REDIS_CONSUMER_GROUP" envDefault:"eventsourcing"`
	Consumer string `env:"REDIS_CONSUMER_NAME" envDefault:"worker-1"`
}

// ConfigFromEnv loads the publisher configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse redis config: %w", err)
	}
	return cfg, nil
}

// Bus publishes committed events onto a Redis stream and optionally consumes
// them through a consumer group. Like every publisher here, a failed XADD
// never rolls back the append it follows; it lands on the error channel.
type Bus struct {
	rdb    *redis.Client
	cfg    Config
	errs   chan error
	group  *errgroup.Group
	cancel context.CancelFunc
}

var _ cqrs.Publisher = (*Bus)(nil)

// New creates a bus on an existing client.
func New(rdb *redis.Client, cfg Config) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	group, _ := errgroup.WithContext(ctx)
	return &Bus{
		rdb:    rdb,
		cfg:    cfg,
		errs:   make(chan error, 64),
		group:  group,
		cancel: cancel,
	}
}

// NewFromEnv connects using the environment Config.
func NewFromEnv(ctx context.Context) (*Bus, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return New(rdb, cfg), nil
}

// Publish appends the envelope onto the stream as a flat field map mirroring
// the persisted record layout.
func (b *Bus) Publish(ctx context.Context, envlp *cqrs.Envelope, source string) error {
	rec, err := cqrs.EncodeRecord(envlp)
	if err != nil {
		b.reportError(err)
		return err
	}

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		b.reportError(err)
		return err
	}

	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.cfg.Stream,
		Values: map[string]any{
			"source":        source,
			"aggregateId":   rec.AggregateID,
			"eventSequence": rec.EventSequence,
			"eventId":       rec.EventID,
			"eventType":     rec.EventType,
			"eventData":     string(rec.EventData),
			"correlationId": rec.CorrelationID,
			"timestamp":     rec.Timestamp,
			"version":       rec.Version,
			"metadata":      string(metadata),
		},
	}).Err()
	if err != nil {
		err = fmt.Errorf("publish event %s: %w", envlp.EventID, err)
		b.reportError(err)
		return err
	}

	return nil
}

// Subscribe starts a consumer-group worker delivering stream entries to the
// handler. Entries are acknowledged only after the handler returns; handler
// errors land on the error channel and the entry stays pending for redelivery.
func (b *Bus) Subscribe(ctx context.Context, handler cqrs.EventHandler) error {
	err := b.rdb.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	b.group.Go(func() error {
		for {
			if err := ctx.Err(); err != nil {
				return nil
			}

			streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.cfg.Group,
				Consumer: b.cfg.Consumer,
				Streams:  []string{b.cfg.Stream, ">"},
				Count:    16,
				Block:    5 * time.Second,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				b.reportError(fmt.Errorf("read stream: %w", err))
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					b.deliver(ctx, handler, message)
				}
			}
		}
	})

	return nil
}

// Errors returns the channel where publish and consume failures are sent.
func (b *Bus) Errors() <-chan error {
	return b.errs
}

// Close stops consumers and waits for them to drain.
func (b *Bus) Close() error {
	b.cancel()
	err := b.group.Wait()
	close(b.errs)
	return err
}

func (b *Bus) deliver(ctx context.Context, handler cqrs.EventHandler, message redis.XMessage) {
	envlp, err := messageToEnvelope(message)
	if err != nil {
		b.reportError(fmt.Errorf("decode entry %s: %w", message.ID, err))
		return
	}

	handlerCtx := cqrs.WithEnvelope(ctx, envlp)
	if err := handler.Handle(handlerCtx, envlp); err != nil {
		var skipped *cqrs.ErrSkippedEvent
		if !errors.As(err, &skipped) {
			b.reportError(fmt.Errorf("handle entry %s: %w", message.ID, err))
			return
		}
	}

	if err := b.rdb.XAck(ctx, b.cfg.Stream, b.cfg.Group, message.ID).Err(); err != nil {
		b.reportError(fmt.Errorf("ack entry %s: %w", message.ID, err))
	}
}

func (b *Bus) reportError(err error) {
	select {
	case b.errs <- err:
	default:
		// Drop error if channel full
	}
}

func messageToEnvelope(message redis.XMessage) (*cqrs.Envelope, error) {
	field := func(name string) string {
		if v, ok := message.Values[name].(string); ok {
			return v
		}
		return ""
	}

	rec := cqrs.Record{
		AggregateID:   field("aggregateId"),
		EventSequence: field("eventSequence"),
		EventID:       field("eventId"),
		EventType:     field("eventType"),
		EventData:     json.RawMessage(field("eventData")),
		CorrelationID: field("correlationId"),
		Timestamp:     field("timestamp"),
		Version:       field("version"),
	}

	if raw := field("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return cqrs.DecodeRecord(rec)
}
