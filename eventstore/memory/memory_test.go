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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/projector/documentstore"
	docmemory "github.com/tochemey/projector/documentstore/memory"
	"github.com/tochemey/projector/eventstore"
)

func newEvents(t *testing.T, count int) []*eventstore.Event {
	t.Helper()
	events := make([]*eventstore.Event, 0, count)
	for i := 0; i < count; i++ {
		event, err := eventstore.NewEvent("AccountCredited", map[string]any{"index": i})
		require.NoError(t, err)
		events = append(events, event)
	}
	return events
}

func TestEventsStore(t *testing.T) {
	t.Run("testNew", func(t *testing.T) {
		eventsStore := NewEventsStore(nil)
		assert.NotNil(t, eventsStore)
		var p interface{} = eventsStore
		_, ok := p.(eventstore.EventsStore)
		assert.True(t, ok)
	})
	t.Run("testConnect", func(t *testing.T) {
		ctx := context.TODO()
		store := NewEventsStore(nil)
		require.NoError(t, store.Connect(ctx))
		require.NoError(t, store.Ping(ctx))
		require.NoError(t, store.Disconnect(ctx))
	})
	t.Run("testNotConnected", func(t *testing.T) {
		ctx := context.TODO()
		store := NewEventsStore(nil)
		_, err := store.HasStream(ctx, "account-1")
		assert.ErrorIs(t, err, eventstore.ErrNotConnected)
		_, err = store.Load(ctx, "account-1", 1)
		assert.ErrorIs(t, err, eventstore.ErrNotConnected)
	})
	t.Run("testCreateAndLoad", func(t *testing.T) {
		ctx := context.TODO()
		store := NewEventsStore(nil)
		require.NoError(t, store.Connect(ctx))

		exists, err := store.HasStream(ctx, "account-1")
		require.NoError(t, err)
		assert.False(t, exists)

		events := newEvents(t, 3)
		require.NoError(t, store.Create(ctx, "account-1", events))

		err = store.Create(ctx, "account-1", nil)
		assert.ErrorIs(t, err, eventstore.ErrStreamAlreadyExists)

		exists, err = store.HasStream(ctx, "account-1")
		require.NoError(t, err)
		assert.True(t, exists)

		loaded, err := store.Load(ctx, "account-1", 1)
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		for i, event := range loaded {
			assert.EqualValues(t, i+1, event.Number)
			assert.Equal(t, events[i].ID, event.ID)
			assert.EqualValues(t, i, event.Data()["index"])
		}

		// the caller events are left untouched
		assert.Zero(t, events[0].Number)

		loaded, err = store.Load(ctx, "account-1", 3)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.EqualValues(t, 3, loaded[0].Number)

		loaded, err = store.Load(ctx, "account-1", 4)
		require.NoError(t, err)
		assert.Empty(t, loaded)

		require.NoError(t, store.Disconnect(ctx))
	})
	t.Run("testAppendTo", func(t *testing.T) {
		ctx := context.TODO()
		store := NewEventsStore(nil)
		require.NoError(t, store.Connect(ctx))

		err := store.AppendTo(ctx, "account-1", newEvents(t, 1))
		assert.ErrorIs(t, err, eventstore.ErrStreamNotFound)

		require.NoError(t, store.Create(ctx, "account-1", newEvents(t, 2)))
		require.NoError(t, store.Create(ctx, "account-10", newEvents(t, 1)))
		require.NoError(t, store.AppendTo(ctx, "account-1", newEvents(t, 2)))

		loaded, err := store.Load(ctx, "account-1", 2)
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		assert.EqualValues(t, 2, loaded[0].Number)
		assert.EqualValues(t, 4, loaded[2].Number)

		require.NoError(t, store.Disconnect(ctx))
	})
	t.Run("testDelete", func(t *testing.T) {
		ctx := context.TODO()
		store := NewEventsStore(nil)
		require.NoError(t, store.Connect(ctx))

		assert.ErrorIs(t, store.Delete(ctx, "account-1"), eventstore.ErrStreamNotFound)

		require.NoError(t, store.Create(ctx, "account-1", newEvents(t, 2)))
		require.NoError(t, store.Delete(ctx, "account-1"))

		_, err := store.Load(ctx, "account-1", 1)
		assert.ErrorIs(t, err, eventstore.ErrStreamNotFound)

		// a recreated stream starts over
		require.NoError(t, store.Create(ctx, "account-1", newEvents(t, 1)))
		loaded, err := store.Load(ctx, "account-1", 1)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.EqualValues(t, 1, loaded[0].Number)

		require.NoError(t, store.Disconnect(ctx))
	})
	t.Run("testCatalog", func(t *testing.T) {
		ctx := context.TODO()
		documents := docmemory.NewDocumentStore()
		require.NoError(t, documents.Connect(ctx))

		store := NewEventsStore(eventstore.NewCatalog(documents, eventstore.StreamsCollection))
		require.NoError(t, store.Connect(ctx))

		for i := 1; i <= 2; i++ {
			require.NoError(t, store.Create(ctx, fmt.Sprintf("account-%d", i), nil))
		}

		streams, err := documents.ListWhere(ctx, eventstore.StreamsCollection, documentstore.Eq{Field: eventstore.FieldCategory, Value: "account"})
		require.NoError(t, err)
		require.Len(t, streams, 2)
		assert.Equal(t, "account-1", streams[0][eventstore.FieldRealStreamName])

		require.NoError(t, store.Delete(ctx, "account-1"))
		streams, err = documents.ListWhere(ctx, eventstore.StreamsCollection, nil)
		require.NoError(t, err)
		require.Len(t, streams, 1)
		assert.Equal(t, "account-2", streams[0][eventstore.FieldRealStreamName])

		require.NoError(t, store.Disconnect(ctx))
		require.NoError(t, documents.Disconnect(ctx))
	})
	t.Run("testLoadLargeStream", func(t *testing.T) {
		ctx := context.TODO()
		store := NewEventsStore(nil)
		require.NoError(t, store.Connect(ctx))

		require.NoError(t, store.Create(ctx, "account-1", newEvents(t, 300)))

		events, err := store.Load(ctx, "account-1", 120)
		require.NoError(t, err)
		require.Len(t, events, 181)
		for i, event := range events {
			assert.EqualValues(t, 120+i, event.Number)
		}

		require.NoError(t, store.Disconnect(ctx))
	})
}
