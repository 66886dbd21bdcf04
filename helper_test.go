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

package projector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tochemey/goakt/v2/log"
	"go.uber.org/atomic"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/testkit"
)

// testStores wraps the testkit stores with call counters
type testStores struct {
	kit       *testkit.Stores
	documents *countingDocumentStore
	events    *countingEventsStore
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	ctx := context.TODO()

	kit, err := testkit.NewStores(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = kit.Close(ctx)
	})

	return &testStores{
		kit:       kit,
		documents: &countingDocumentStore{Store: kit.Documents, persists: atomic.NewInt32(0)},
		events: &countingEventsStore{
			EventsStore: kit.Events,
			hasStream:   atomic.NewInt32(0),
			creates:     atomic.NewInt32(0),
			appends:     atomic.NewInt32(0),
		},
	}
}

// newProjector creates a projector with a quiet logger and a short sleep
func (s *testStores) newProjector(t *testing.T, name string, opts ...Option) *Projector {
	t.Helper()
	all := append([]Option{WithLogger(log.DiscardLogger), WithSleep(10 * time.Millisecond)}, opts...)
	p, err := New(name, s.events, s.documents, all...)
	require.NoError(t, err)
	return p
}

// write appends events with the given names to the stream, creating it when missing
func (s *testStores) write(t *testing.T, streamName string, names ...string) {
	t.Helper()
	require.NoError(t, s.kit.AppendNamed(context.TODO(), streamName, names...))
}

func (s *testStores) projection(t *testing.T, name string) documentstore.Document {
	t.Helper()
	document, err := s.documents.Read(context.TODO(), DefaultProjectionsCollection, name)
	require.NoError(t, err)
	return document
}

// countingDocumentStore counts the checkpoints written
type countingDocumentStore struct {
	documentstore.Store
	persists *atomic.Int32
}

func (s *countingDocumentStore) Update(ctx context.Context, collection, key string, fields documentstore.Document) error {
	if _, ok := fields[fieldPosition]; ok {
		if _, reset := fields[fieldStatus]; !reset {
			s.persists.Inc()
		}
	}
	return s.Store.Update(ctx, collection, key, fields)
}

// conflictingDocumentStore fails every checkpoint write with a conflict
type conflictingDocumentStore struct {
	documentstore.Store
}

func (s *conflictingDocumentStore) Update(ctx context.Context, collection, key string, fields documentstore.Document) error {
	if _, ok := fields[fieldPosition]; ok {
		if _, reset := fields[fieldStatus]; !reset {
			return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrConflict)
		}
	}
	return s.Store.Update(ctx, collection, key, fields)
}

// countingEventsStore counts the calls made by the emitter
type countingEventsStore struct {
	eventstore.EventsStore
	hasStream *atomic.Int32
	creates   *atomic.Int32
	appends   *atomic.Int32
}

func (s *countingEventsStore) HasStream(ctx context.Context, streamName string) (bool, error) {
	s.hasStream.Inc()
	return s.EventsStore.HasStream(ctx, streamName)
}

func (s *countingEventsStore) Create(ctx context.Context, streamName string, events []*eventstore.Event) error {
	s.creates.Inc()
	return s.EventsStore.Create(ctx, streamName, events)
}

func (s *countingEventsStore) AppendTo(ctx context.Context, streamName string, events []*eventstore.Event) error {
	s.appends.Inc()
	return s.EventsStore.AppendTo(ctx, streamName, events)
}

// counter increments the count field of the state
func counter(_ *HandlerContext, state State, _ *eventstore.Event) (State, error) {
	state["count"] = toInt(state["count"]) + 1
	return state, nil
}

func initCounter() State {
	return State{"count": 0}
}

func toInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
