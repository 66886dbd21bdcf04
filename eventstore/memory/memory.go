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

package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
	"go.uber.org/atomic"

	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/internal/telemetry"
)

// EventsStore keep in memory every stream
// NOTE: NOT RECOMMENDED FOR PRODUCTION CODE because all records are in memory and there is no durability.
// This is recommended for tests or PoC
type EventsStore struct {
	// specifies the underlying database
	db *memdb.MemDB
	// catalog registers created streams. It can be nil
	catalog *eventstore.Catalog
	// this is only useful for tests
	KeepRecordsAfterDisconnect bool
	// hold the connection state to avoid multiple connection of the same instance
	connected *atomic.Bool
}

// enforce interface implementation
var _ eventstore.EventsStore = (*EventsStore)(nil)

// NewEventsStore creates a new instance of EventsStore.
// Streams are registered in the given catalog when it is not nil.
func NewEventsStore(catalog *eventstore.Catalog) *EventsStore {
	return &EventsStore{
		catalog:                    catalog,
		KeepRecordsAfterDisconnect: false,
		connected:                  atomic.NewBool(false),
	}
}

// Connect connects to the events store
func (s *EventsStore) Connect(ctx context.Context) error {
	_, span := telemetry.SpanContext(ctx, "eventsStore.Connect")
	defer span.End()

	if s.connected.Load() {
		return nil
	}

	if s.db == nil || !s.KeepRecordsAfterDisconnect {
		db, err := memdb.NewMemDB(journalSchema)
		if err != nil {
			return err
		}
		s.db = db
	}

	s.connected.Store(true)
	return nil
}

// Disconnect disconnect the events store
func (s *EventsStore) Disconnect(ctx context.Context) error {
	_, span := telemetry.SpanContext(ctx, "eventsStore.Disconnect")
	defer span.End()

	if !s.connected.Load() {
		return nil
	}

	// clear all records
	if !s.KeepRecordsAfterDisconnect {
		txn := s.db.Txn(true)
		if _, err := txn.DeleteAll(journalTableName, journalPK); err != nil {
			txn.Abort()
			return fmt.Errorf("failed to free memory resource: %w", err)
		}
		if _, err := txn.DeleteAll(streamsTableName, streamsPK); err != nil {
			txn.Abort()
			return fmt.Errorf("failed to free memory resource: %w", err)
		}
		txn.Commit()
	}

	s.connected.Store(false)
	return nil
}

// Ping verifies a connection to the database is still alive, establishing a connection if necessary.
func (s *EventsStore) Ping(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "eventsStore.Ping")
	defer span.End()

	if !s.connected.Load() {
		return s.Connect(spanCtx)
	}
	return nil
}

// HasStream checks whether the given stream exists
func (s *EventsStore) HasStream(ctx context.Context, streamName string) (bool, error) {
	_, span := telemetry.SpanContext(ctx, "eventsStore.HasStream")
	defer span.End()

	if !s.connected.Load() {
		return false, eventstore.ErrNotConnected
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(streamsTableName, streamsPK, streamName)
	if err != nil {
		return false, fmt.Errorf("failed to fetch stream=%s: %w", streamName, err)
	}
	return raw != nil, nil
}

// Create creates a new stream with the given initial events
func (s *EventsStore) Create(ctx context.Context, streamName string, events []*eventstore.Event) error {
	spanCtx, span := telemetry.SpanContext(ctx, "eventsStore.Create")
	defer span.End()

	if !s.connected.Load() {
		return eventstore.ErrNotConnected
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(streamsTableName, streamsPK, streamName)
	if err != nil {
		return fmt.Errorf("failed to fetch stream=%s: %w", streamName, err)
	}

	if raw != nil {
		return fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamAlreadyExists)
	}

	if err := s.write(txn, &stream{Name: streamName}, events); err != nil {
		return err
	}

	txn.Commit()
	return s.catalog.Register(spanCtx, streamName)
}

// AppendTo appends events to an existing stream
func (s *EventsStore) AppendTo(ctx context.Context, streamName string, events []*eventstore.Event) error {
	_, span := telemetry.SpanContext(ctx, "eventsStore.AppendTo")
	defer span.End()

	if !s.connected.Load() {
		return eventstore.ErrNotConnected
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(streamsTableName, streamsPK, streamName)
	if err != nil {
		return fmt.Errorf("failed to fetch stream=%s: %w", streamName, err)
	}

	if raw == nil {
		return fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamNotFound)
	}

	if err := s.write(txn, raw.(*stream), events); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// Load returns the events of a stream starting at the given event number (inclusive)
func (s *EventsStore) Load(ctx context.Context, streamName string, fromNumber uint64) ([]*eventstore.Event, error) {
	_, span := telemetry.SpanContext(ctx, "eventsStore.Load")
	defer span.End()

	if !s.connected.Load() {
		return nil, eventstore.ErrNotConnected
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(streamsTableName, streamsPK, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stream=%s: %w", streamName, err)
	}

	if raw == nil {
		return nil, fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamNotFound)
	}

	it, err := txn.Get(journalTableName, streamNameIndex, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream=%s: %w", streamName, err)
	}

	var events []*eventstore.Event
	for row := it.Next(); row != nil; row = it.Next() {
		if entry, ok := row.(*journal); ok && entry.Number >= fromNumber {
			events = append(events, entry.Event.Clone())
		}
	}

	// the number index encoding does not preserve the numeric order
	sort.Slice(events, func(i, j int) bool {
		return events[i].Number < events[j].Number
	})

	return events, nil
}

// Delete removes a stream and all its events
func (s *EventsStore) Delete(ctx context.Context, streamName string) error {
	spanCtx, span := telemetry.SpanContext(ctx, "eventsStore.Delete")
	defer span.End()

	if !s.connected.Load() {
		return eventstore.ErrNotConnected
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(streamsTableName, streamsPK, streamName)
	if err != nil {
		return fmt.Errorf("failed to fetch stream=%s: %w", streamName, err)
	}

	if raw == nil {
		return fmt.Errorf("stream=%s: %w", streamName, eventstore.ErrStreamNotFound)
	}

	if _, err := txn.DeleteAll(journalTableName, streamNameIndex, streamName); err != nil {
		return fmt.Errorf("failed to delete stream=%s events: %w", streamName, err)
	}

	if err := txn.Delete(streamsTableName, raw); err != nil {
		return fmt.Errorf("failed to delete stream=%s: %w", streamName, err)
	}

	txn.Commit()
	return s.catalog.Unregister(spanCtx, streamName)
}

// write numbers the events after the stream last number and records them
func (s *EventsStore) write(txn *memdb.Txn, current *stream, events []*eventstore.Event) error {
	next := &stream{Name: current.Name, LastNumber: current.LastNumber}
	for _, event := range events {
		next.LastNumber++
		entry := &journal{
			StreamName: next.Name,
			Number:     next.LastNumber,
			Event:      event.WithNumber(next.LastNumber),
		}
		if err := txn.Insert(journalTableName, entry); err != nil {
			return fmt.Errorf("failed to persist event on to stream=%s: %w", next.Name, err)
		}
	}

	if err := txn.Insert(streamsTableName, next); err != nil {
		return fmt.Errorf("failed to persist stream=%s: %w", next.Name, err)
	}
	return nil
}
