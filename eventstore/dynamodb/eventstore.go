package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/caarlos0/env/v10"

	cqrs "github.com/vantage-obs/eventsourcing"
)

// Config holds the DynamoDB backend configuration, loadable from the
// environment. The table uses aggregateId as partition key and eventSequence
// (zero-padded string) as sort key.
type Config struct {
	TableName string `env:"EVENT_STORE_TABLE" envDefault:"events"`
	Endpoint  string `env:"EVENT_STORE_ENDPOINT"`
	Region    string `env:"AWS_REGION" envDefault:"us-east-1"`
}

// ConfigFromEnv loads the backend configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse dynamodb config: %w", err)
	}
	return cfg, nil
}

// Store is a DynamoDB-backed event store. Sequence assignment relies on a
// conditional put keyed by (aggregateId, eventSequence): two writers racing
// for the same sequence collide on the condition and the loser gets a
// ConflictError.
type Store struct {
	client *dynamodb.Client
	table  string
}

var _ cqrs.EventStore = (*Store)(nil)

// New creates a store on an existing client.
func New(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

// NewFromEnv builds the client from the default AWS config chain plus the
// environment Config. Endpoint is only set for local development against
// DynamoDB Local.
func NewFromEnv(ctx context.Context) (*Store, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return New(client, cfg.TableName), nil
}

func (s *Store) Append(ctx context.Context, envlp cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
	id := envlp.AggregateID

	latest, err := s.LatestSequence(ctx, id)
	if err != nil {
		return cqrs.AppendResult{}, err
	}

	if err := cqrs.CheckExpect(expect, latest, id); err != nil {
		return cqrs.AppendResult{}, err
	}

	envlp.Sequence = latest + 1
	rec, err := cqrs.EncodeRecord(&envlp)
	if err != nil {
		return cqrs.AppendResult{}, cqrs.WrapStorageError("append", err)
	}

	item, err := recordToItem(rec)
	if err != nil {
		return cqrs.AppendResult{}, cqrs.WrapStorageError("append", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(aggregateId) AND attribute_not_exists(eventSequence)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Lost the race for this sequence number to a concurrent writer.
			return cqrs.AppendResult{}, &cqrs.ConflictError{
				AggregateID: id,
				Expected:    latest,
				Actual:      envlp.Sequence,
			}
		}
		return cqrs.AppendResult{}, cqrs.WrapStorageError("append", err)
	}

	return cqrs.AppendResult{Sequence: envlp.Sequence}, nil
}

func (s *Store) LoadStream(ctx context.Context, id string) (*cqrs.Iterator[*cqrs.Envelope], error) {
	return s.LoadStreamFrom(ctx, id, 0)
}

func (s *Store) LoadStreamFrom(ctx context.Context, id string, from uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("aggregateId = :id AND eventSequence >= :from"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":   &types.AttributeValueMemberS{Value: id},
			":from": &types.AttributeValueMemberS{Value: cqrs.FormatSequence(from)},
		},
	}

	paginator := dynamodb.NewQueryPaginator(s.client, input)
	var buffer []*cqrs.Envelope

	return cqrs.NewIteratorFunc(func(ctx context.Context) (*cqrs.Envelope, error) {
		for len(buffer) == 0 {
			if !paginator.HasMorePages() {
				return nil, io.EOF
			}
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, cqrs.WrapStorageError("load", err)
			}
			for _, item := range page.Items {
				envlp, err := itemToEnvelope(item)
				if err != nil {
					return nil, cqrs.WrapStorageError("load", err)
				}
				buffer = append(buffer, envlp)
			}
		}
		envlp := buffer[0]
		buffer = buffer[1:]
		return envlp, nil
	}), nil
}

func (s *Store) LatestSequence(ctx context.Context, id string) (uint64, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("aggregateId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, cqrs.WrapStorageError("latest sequence", err)
	}

	if len(out.Items) == 0 {
		return 0, nil
	}

	raw, err := stringAttr(out.Items[0], "eventSequence")
	if err != nil {
		return 0, cqrs.WrapStorageError("latest sequence", err)
	}
	return cqrs.ParseSequence(raw)
}

func (s *Store) Close() error {
	return nil
}

func recordToItem(rec cqrs.Record) (map[string]types.AttributeValue, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return map[string]types.AttributeValue{
		"aggregateId":   &types.AttributeValueMemberS{Value: rec.AggregateID},
		"eventSequence": &types.AttributeValueMemberS{Value: rec.EventSequence},
		"eventId":       &types.AttributeValueMemberS{Value: rec.EventID},
		"eventType":     &types.AttributeValueMemberS{Value: rec.EventType},
		"eventData":     &types.AttributeValueMemberS{Value: string(rec.EventData)},
		"correlationId": &types.AttributeValueMemberS{Value: rec.CorrelationID},
		"timestamp":     &types.AttributeValueMemberS{Value: rec.Timestamp},
		"version":       &types.AttributeValueMemberS{Value: rec.Version},
		"metadata":      &types.AttributeValueMemberS{Value: string(metadata)},
	}, nil
}

func itemToEnvelope(item map[string]types.AttributeValue) (*cqrs.Envelope, error) {
	rec := cqrs.Record{}

	fields := map[string]*string{
		"aggregateId":   &rec.AggregateID,
		"eventSequence": &rec.EventSequence,
		"eventId":       &rec.EventID,
		"eventType":     &rec.EventType,
		"correlationId": &rec.CorrelationID,
		"timestamp":     &rec.Timestamp,
		"version":       &rec.Version,
	}
	for name, dst := range fields {
		value, err := stringAttr(item, name)
		if err != nil {
			return nil, err
		}
		*dst = value
	}

	data, err := stringAttr(item, "eventData")
	if err != nil {
		return nil, err
	}
	rec.EventData = json.RawMessage(data)

	if raw, err := stringAttr(item, "metadata"); err == nil && raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return cqrs.DecodeRecord(rec)
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	attr, ok := item[name]
	if !ok {
		return "", fmt.Errorf("item missing attribute %q", name)
	}
	s, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", name)
	}
	return s.Value, nil
}
