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

// Package testkit helps testing projections against in-memory stores
package testkit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	docmemory "github.com/tochemey/projector/documentstore/memory"
	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/eventstore/memory"
)

// Stores bundles connected in-memory stores. Every stream created in
// Events is registered in the streams catalog of Documents.
type Stores struct {
	Documents *docmemory.DocumentStore
	Events    *memory.EventsStore
}

// NewStores creates and connects the stores
func NewStores(ctx context.Context) (*Stores, error) {
	documents := docmemory.NewDocumentStore()
	if err := documents.Connect(ctx); err != nil {
		return nil, err
	}

	events := memory.NewEventsStore(eventstore.NewCatalog(documents, eventstore.StreamsCollection))
	if err := events.Connect(ctx); err != nil {
		return nil, multierr.Append(err, documents.Disconnect(ctx))
	}

	return &Stores{Documents: documents, Events: events}, nil
}

// Append writes the events to the stream, creating it when it does not exist
func (s *Stores) Append(ctx context.Context, streamName string, events ...*eventstore.Event) error {
	err := s.Events.AppendTo(ctx, streamName, events)
	if errors.Is(err, eventstore.ErrStreamNotFound) {
		err = s.Events.Create(ctx, streamName, events)
	}
	return err
}

// AppendNamed writes events with the given names and an empty payload
func (s *Stores) AppendNamed(ctx context.Context, streamName string, names ...string) error {
	events := make([]*eventstore.Event, 0, len(names))
	for _, name := range names {
		event, err := eventstore.NewEvent(name, nil)
		if err != nil {
			return fmt.Errorf("invalid event for stream=%s: %w", streamName, err)
		}
		events = append(events, event)
	}
	return s.Append(ctx, streamName, events...)
}

// Close disconnects the stores
func (s *Stores) Close(ctx context.Context) error {
	return multierr.Combine(
		s.Events.Disconnect(ctx),
		s.Documents.Disconnect(ctx),
	)
}
