package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/lib/pq"

	cqrs "github.com/vantage-obs/eventsourcing"
)

// uniqueViolation is the Postgres error code raised when the primary key
// (aggregate_id, event_sequence) already exists, i.e. a concurrent writer won
// the race for that sequence number.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS events (
    aggregate_id   TEXT        NOT NULL,
    event_sequence BIGINT      NOT NULL,
    event_id       UUID        NOT NULL,
    event_type     TEXT        NOT NULL,
    event_data     JSONB       NOT NULL,
    correlation_id TEXT        NOT NULL DEFAULT '',
    occurred_at    TIMESTAMPTZ NOT NULL,
    schema_version TEXT        NOT NULL DEFAULT '1.0',
    metadata       JSONB,
    PRIMARY KEY (aggregate_id, event_sequence)
)`

// Config holds the Postgres backend configuration.
type Config struct {
	DSN string `env:"DATABASE_URL,required"`
}

// ConfigFromEnv loads the backend configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse postgres config: %w", err)
	}
	return cfg, nil
}

// Store is a Postgres-backed event store. The composite primary key makes the
// insert the atomic conditional write: a duplicate (aggregate_id, sequence)
// insert fails with a unique violation and surfaces as a ConflictError.
type Store struct {
	db *sql.DB
}

var _ cqrs.EventStore = (*Store)(nil)

// New creates a store on an existing database handle and ensures the events
// table exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, cqrs.WrapStorageError("ensure schema", err)
	}
	return &Store{db: db}, nil
}

// Open connects using the environment Config and creates the store.
func Open(ctx context.Context) (*Store, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, cqrs.WrapStorageError("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, cqrs.WrapStorageError("ping", err)
	}

	return New(ctx, db)
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

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return cqrs.AppendResult{}, cqrs.WrapStorageError("append", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO events (aggregate_id, event_sequence, event_id, event_type, event_data, correlation_id, occurred_at, schema_version, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `,
		rec.AggregateID,
		envlp.Sequence,
		rec.EventID,
		rec.EventType,
		[]byte(rec.EventData),
		rec.CorrelationID,
		envlp.OccurredAt,
		rec.Version,
		metadata,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
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
	rows, err := s.db.QueryContext(ctx, `
        SELECT aggregate_id, event_sequence, event_id, event_type, event_data, correlation_id, occurred_at, schema_version, metadata
        FROM events
        WHERE aggregate_id = $1 AND event_sequence >= $2
        ORDER BY event_sequence ASC
    `, id, int64(from))
	if err != nil {
		return nil, cqrs.WrapStorageError("load", err)
	}

	return cqrs.NewIteratorFunc(func(ctx context.Context) (*cqrs.Envelope, error) {
		if !rows.Next() {
			closeErr := rows.Close()
			if err := rows.Err(); err != nil {
				return nil, cqrs.WrapStorageError("load", err)
			}
			if closeErr != nil {
				return nil, cqrs.WrapStorageError("load", closeErr)
			}
			return nil, io.EOF
		}

		envlp, err := scanRow(rows)
		if err != nil {
			rows.Close()
			return nil, cqrs.WrapStorageError("load", err)
		}
		return envlp, nil
	}), nil
}

func (s *Store) LatestSequence(ctx context.Context, id string) (uint64, error) {
	var latest int64
	err := s.db.QueryRowContext(ctx, `
        SELECT COALESCE(MAX(event_sequence), 0) FROM events WHERE aggregate_id = $1
    `, id).Scan(&latest)
	if err != nil {
		return 0, cqrs.WrapStorageError("latest sequence", err)
	}
	return uint64(latest), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanRow(rows *sql.Rows) (*cqrs.Envelope, error) {
	var (
		rec       cqrs.Record
		sequence  int64
		eventData []byte
		occurred  sql.NullTime
		metadata  []byte
	)

	if err := rows.Scan(
		&rec.AggregateID,
		&sequence,
		&rec.EventID,
		&rec.EventType,
		&eventData,
		&rec.CorrelationID,
		&occurred,
		&rec.Version,
		&metadata,
	); err != nil {
		return nil, fmt.Errorf("scan event row: %w", err)
	}

	rec.EventSequence = cqrs.FormatSequence(uint64(sequence))
	rec.EventData = json.RawMessage(eventData)
	if occurred.Valid {
		rec.Timestamp = occurred.Time.UTC().Format(time.RFC3339Nano)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return cqrs.DecodeRecord(rec)
}
