package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"modernc.org/sqlite"

	cqrs "github.com/vantage-obs/eventsourcing"
)

// SQLite result codes for a primary-key collision on (aggregate_id,
// event_sequence). Mapped to ConflictError like the other SQL backend.
const (
	codeConstraint           = 19
	codeConstraintPrimaryKey = 1555
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    aggregate_id   TEXT    NOT NULL,
    event_sequence INTEGER NOT NULL,
    event_id       TEXT    NOT NULL,
    event_type     TEXT    NOT NULL,
    event_data     TEXT    NOT NULL,
    correlation_id TEXT    NOT NULL DEFAULT '',
    occurred_at    TEXT    NOT NULL,
    schema_version TEXT    NOT NULL DEFAULT '1.0',
    metadata       TEXT,
    PRIMARY KEY (aggregate_id, event_sequence)
)`

// Store is an embedded, file-backed event store for local development and
// single-process deployments. Writers in this process are serialized by the
// mutex; the primary key still guards against any writer outside it.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

var _ cqrs.EventStore = (*Store)(nil)

// Open creates or opens the store at the given path. Use ":memory:" for an
// ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cqrs.WrapStorageError("open", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, cqrs.WrapStorageError("ensure schema", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Append(ctx context.Context, envlp cqrs.Envelope, expect cqrs.Expect) (cqrs.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := envlp.AggregateID

	latest, err := s.latestSequence(ctx, id)
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
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		rec.AggregateID,
		int64(envlp.Sequence),
		rec.EventID,
		rec.EventType,
		string(rec.EventData),
		rec.CorrelationID,
		rec.Timestamp,
		rec.Version,
		string(metadata),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.Code() == codeConstraint || sqliteErr.Code() == codeConstraintPrimaryKey) {
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
        WHERE aggregate_id = ? AND event_sequence >= ?
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
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestSequence(ctx, id)
}

func (s *Store) latestSequence(ctx context.Context, id string) (uint64, error) {
	var latest int64
	err := s.db.QueryRowContext(ctx, `
        SELECT COALESCE(MAX(event_sequence), 0) FROM events WHERE aggregate_id = ?
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
		eventData string
		occurred  string
		metadata  sql.NullString
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
	rec.Timestamp = occurred
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	// Timestamps are stored as RFC 3339; nothing to normalize, but verify
	// early so decoding errors point at the right row.
	if _, err := time.Parse(time.RFC3339Nano, occurred); err != nil {
		return nil, fmt.Errorf("parse occurred_at %q: %w", occurred, err)
	}

	return cqrs.DecodeRecord(rec)
}
