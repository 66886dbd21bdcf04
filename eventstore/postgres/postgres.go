/*
 * MIT License
 *
 * Copyright (c) 2022-2025 Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/atomic"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/internal/postgres"
	"github.com/tochemey/projector/internal/telemetry"
)

var (
	columns = []string{
		"stream_name",
		"event_number",
		"event_id",
		"event_name",
		"payload",
		"metadata",
		"timestamp",
	}

	tableName        = "events_store"
	streamsTableName = "event_streams_store"
)

// unique_violation
const uniqueViolation = "23505"

// row represents an events_store record
type row struct {
	StreamName  string
	EventNumber uint64
	EventID     string
	EventName   string
	Payload     []byte
	Metadata    []byte
	Timestamp   int64
}

// ToEvent converts the row into an event
func (x row) ToEvent() (*eventstore.Event, error) {
	payload := new(structpb.Struct)
	if err := proto.Unmarshal(x.Payload, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the event payload: %w", err)
	}

	metadata := make(map[string]string)
	if len(x.Metadata) > 0 {
		if err := json.Unmarshal(x.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal the event metadata: %w", err)
		}
	}

	return &eventstore.Event{
		ID:        x.EventID,
		Name:      x.EventName,
		Number:    x.EventNumber,
		Payload:   payload,
		Metadata:  metadata,
		Timestamp: x.Timestamp,
	}, nil
}

// EventsStore implements the EventsStore interface
// and helps persist events in a Postgres database
type EventsStore struct {
	db      postgres.Postgres
	sb      sq.StatementBuilderType
	schema  *SchemaUtils
	catalog *eventstore.Catalog
	// insertBatchSize represents the chunk of data to bulk insert.
	// This helps avoid the postgres 65535 parameter limit.
	// This is necessary because Postgres uses a 32-bit int for binding input parameters and
	// is not able to track anything larger.
	// Note: Change this value when you know the size of data to bulk insert at once. Otherwise, you
	// might encounter the postgres 65535 parameter limit error.
	insertBatchSize int
	// hold the connection state to avoid multiple connection of the same instance
	connected *atomic.Bool
}

// enforce interface implementation
var _ eventstore.EventsStore = (*EventsStore)(nil)

// NewEventsStore creates a new instance of EventsStore.
// Streams are registered in the given catalog when it is not nil.
func NewEventsStore(config *postgres.Config, catalog *eventstore.Catalog) *EventsStore {
	db := postgres.New(config)
	return &EventsStore{
		db:              db,
		sb:              sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		schema:          NewSchemaUtils(db),
		catalog:         catalog,
		insertBatchSize: 500,
		connected:       atomic.NewBool(false),
	}
}

// Connect connects to the underlying postgres database and creates the tables when missing
func (s *EventsStore) Connect(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.Connect")
	defer span.End()

	if s.connected.Load() {
		return nil
	}

	if err := s.db.Connect(ctx); err != nil {
		return err
	}

	if err := s.schema.CreateTable(ctx); err != nil {
		return fmt.Errorf("failed to create the events store tables: %w", err)
	}

	s.connected.Store(true)
	return nil
}

// Disconnect disconnects from the underlying postgres database
func (s *EventsStore) Disconnect(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.Disconnect")
	defer span.End()

	if !s.connected.Load() {
		return nil
	}

	if err := s.db.Disconnect(ctx); err != nil {
		return err
	}

	s.connected.Store(false)
	return nil
}

// Ping verifies a connection to the database is still alive, establishing a connection if necessary.
func (s *EventsStore) Ping(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.Ping")
	defer span.End()

	if !s.connected.Load() {
		return s.Connect(ctx)
	}

	return s.db.Ping(ctx)
}

// HasStream checks whether the given stream exists
func (s *EventsStore) HasStream(ctx context.Context, streamName string) (bool, error) {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.HasStream")
	defer span.End()

	if !s.connected.Load() {
		return false, eventstore.ErrNotConnected
	}

	return s.hasStream(ctx, streamName)
}

// Create creates a new stream with the given initial events
func (s *EventsStore) Create(ctx context.Context, streamName string, events []*eventstore.Event) error {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.Create")
	defer span.End()

	if !s.connected.Load() {
		return eventstore.ErrNotConnected
	}

	query, args, err := s.sb.
		Insert(streamsTableName).
		Columns("stream_name", "last_number").
		Values(streamName, len(events)).
		ToSql()
	if err != nil {
		return fmt.Errorf("unable to build sql insert statement: %w", err)
	}

	if err := s.db.WithinTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamAlreadyExists)
			}
			return fmt.Errorf("failed to create stream=%s: %w", streamName, err)
		}
		return s.writeEvents(ctx, tx, streamName, 1, events)
	}); err != nil {
		return err
	}

	return s.catalog.Register(ctx, streamName)
}

// AppendTo appends events to an existing stream.
// The stream row is locked by the update so that concurrent appends get consecutive numbers.
func (s *EventsStore) AppendTo(ctx context.Context, streamName string, events []*eventstore.Event) error {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.AppendTo")
	defer span.End()

	if !s.connected.Load() {
		return eventstore.ErrNotConnected
	}

	query, args, err := s.sb.
		Update(streamsTableName).
		Set("last_number", sq.Expr("last_number + ?", len(events))).
		Where(sq.Eq{"stream_name": streamName}).
		Suffix("RETURNING last_number").
		ToSql()
	if err != nil {
		return fmt.Errorf("unable to build sql update statement: %w", err)
	}

	return s.db.WithinTx(ctx, func(tx pgx.Tx) error {
		var lastNumber uint64
		if err := tx.QueryRow(ctx, query, args...).Scan(&lastNumber); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamNotFound)
			}
			return fmt.Errorf("failed to append to stream=%s: %w", streamName, err)
		}
		return s.writeEvents(ctx, tx, streamName, lastNumber-uint64(len(events))+1, events)
	})
}

// Load returns the events of a stream starting at the given event number (inclusive)
func (s *EventsStore) Load(ctx context.Context, streamName string, fromNumber uint64) ([]*eventstore.Event, error) {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.Load")
	defer span.End()

	if !s.connected.Load() {
		return nil, eventstore.ErrNotConnected
	}

	exists, err := s.hasStream(ctx, streamName)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamNotFound)
	}

	query, args, err := s.sb.
		Select(columns...).
		From(tableName).
		Where(sq.Eq{"stream_name": streamName}).
		Where(sq.GtOrEq{"event_number": fromNumber}).
		OrderBy("event_number ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build the select sql statement: %w", err)
	}

	var rows []*row
	if err := s.db.SelectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch the events from the database: %w", err)
	}

	events := make([]*eventstore.Event, 0, len(rows))
	for _, rec := range rows {
		event, err := rec.ToEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Delete removes a stream and all its events
func (s *EventsStore) Delete(ctx context.Context, streamName string) error {
	ctx, span := telemetry.SpanContext(ctx, "eventsStore.Delete")
	defer span.End()

	if !s.connected.Load() {
		return eventstore.ErrNotConnected
	}

	deleteStream, streamArgs, err := s.sb.Delete(streamsTableName).Where(sq.Eq{"stream_name": streamName}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build the delete sql statement: %w", err)
	}

	deleteEvents, eventsArgs, err := s.sb.Delete(tableName).Where(sq.Eq{"stream_name": streamName}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build the delete sql statement: %w", err)
	}

	if err := s.db.WithinTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteStream, streamArgs...)
		if err != nil {
			return fmt.Errorf("failed to delete stream=%s: %w", streamName, err)
		}

		if tag.RowsAffected() == 0 {
			return fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamNotFound)
		}

		if _, err := tx.Exec(ctx, deleteEvents, eventsArgs...); err != nil {
			return fmt.Errorf("failed to delete stream=%s events: %w", streamName, err)
		}
		return nil
	}); err != nil {
		return err
	}

	return s.catalog.Unregister(ctx, streamName)
}

func (s *EventsStore) hasStream(ctx context.Context, streamName string) (bool, error) {
	query, args, err := s.sb.
		Select("COUNT(*)").
		From(streamsTableName).
		Where(sq.Eq{"stream_name": streamName}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build the select sql statement: %w", err)
	}

	var count int
	if err := s.db.Select(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("failed to fetch stream=%s: %w", streamName, err)
	}
	return count > 0, nil
}

// writeEvents inserts the events in batches numbering them from the given number
func (s *EventsStore) writeEvents(ctx context.Context, tx pgx.Tx, streamName string, firstNumber uint64, events []*eventstore.Event) error {
	statement := s.sb.Insert(tableName).Columns(columns...)
	for index, event := range events {
		payload, err := proto.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal the event payload: %w", err)
		}

		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal the event metadata: %w", err)
		}

		statement = statement.Values(
			streamName,
			firstNumber+uint64(index),
			event.ID,
			event.Name,
			payload,
			sq.Expr("?::jsonb", string(metadata)),
			event.Timestamp,
		)

		if (index+1)%s.insertBatchSize == 0 || index == len(events)-1 {
			query, args, err := statement.ToSql()
			if err != nil {
				return fmt.Errorf("unable to build sql insert statement: %w", err)
			}

			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to record events: %w", err)
			}

			// reset the statement for the next bulk
			statement = s.sb.Insert(tableName).Columns(columns...)
		}
	}
	return nil
}
