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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tochemey/goakt/v2/log"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/eventstore"
)

func TestConfiguration(t *testing.T) {
	defer goleak.VerifyNone(t)

	stores := newTestStores(t)

	t.Run("testNewWithInvalidArguments", func(t *testing.T) {
		_, err := New("", stores.events, stores.documents)
		assert.Error(t, err)
		_, err = New("users", nil, stores.documents)
		assert.Error(t, err)
		_, err = New("users", stores.events, nil)
		assert.Error(t, err)
	})
	t.Run("testQueryAlreadySet", func(t *testing.T) {
		p := stores.newProjector(t, "users")
		require.NoError(t, p.FromStream("user-1"))
		assert.ErrorIs(t, p.FromStreams("user-2", "user-3"), ErrQueryAlreadySet)
		assert.ErrorIs(t, p.FromCategory("user"), ErrQueryAlreadySet)
		assert.ErrorIs(t, p.FromCategories("user"), ErrQueryAlreadySet)
		assert.ErrorIs(t, p.FromAll(), ErrQueryAlreadySet)
	})
	t.Run("testEmptyQuery", func(t *testing.T) {
		p := stores.newProjector(t, "users")
		assert.ErrorIs(t, p.FromStreams(), ErrNoQuery)
		assert.ErrorIs(t, p.FromCategory(""), ErrNoQuery)
		// the failed calls did not set anything
		require.NoError(t, p.FromAll())
	})
	t.Run("testHandlersAlreadySet", func(t *testing.T) {
		p := stores.newProjector(t, "users")
		require.NoError(t, p.WhenAny(counter))
		assert.ErrorIs(t, p.WhenAny(counter), ErrHandlersAlreadySet)
		assert.ErrorIs(t, p.When(map[string]Handler{"UserCreated": counter}), ErrHandlersAlreadySet)

		p = stores.newProjector(t, "users")
		require.NoError(t, p.When(map[string]Handler{"UserCreated": counter}))
		assert.ErrorIs(t, p.WhenAny(counter), ErrHandlersAlreadySet)
	})
	t.Run("testInvalidHandlers", func(t *testing.T) {
		p := stores.newProjector(t, "users")
		assert.ErrorIs(t, p.WhenAny(nil), ErrInvalidHandler)
		assert.ErrorIs(t, p.When(map[string]Handler{"UserCreated": nil}), ErrInvalidHandler)
		assert.ErrorIs(t, p.When(map[string]Handler{"": counter}), ErrInvalidEventName)
		assert.ErrorIs(t, p.When(map[string]Handler{}), ErrNoHandlers)
		assert.ErrorIs(t, p.Init(nil), ErrInvalidHandler)
	})
	t.Run("testAlreadyInitialized", func(t *testing.T) {
		p := stores.newProjector(t, "users")
		require.NoError(t, p.Init(initCounter))
		assert.Equal(t, State{"count": 0}, p.State())
		assert.ErrorIs(t, p.Init(initCounter), ErrAlreadyInitialized)
	})
	t.Run("testRunWithoutQueryOrHandlers", func(t *testing.T) {
		ctx := context.TODO()
		p := stores.newProjector(t, "users")
		assert.ErrorIs(t, p.Run(ctx, false), ErrNoQuery)
		require.NoError(t, p.FromAll())
		assert.ErrorIs(t, p.Run(ctx, false), ErrNoHandlers)
	})
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("testSinglePass", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E0", "E1", "E2")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))

		require.NoError(t, p.Run(ctx, false))

		assert.Equal(t, 3, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"S": 3}, p.StreamPositions())
		assert.Equal(t, StatusIdle, p.Status())

		document := stores.projection(t, "P")
		assert.EqualValues(t, 3, document[fieldPosition].(map[string]any)["S"])
		assert.EqualValues(t, 3, document[fieldState].(map[string]any)["count"])
		assert.Equal(t, StatusIdle.String(), document[fieldStatus])
		assert.Nil(t, document[fieldLockedUntil])
	})
	t.Run("testIdempotentCreateAndResume", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E0", "E1", "E2")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, false))

		stores.write(t, "S", "E3", "E4")

		// a fresh process picks up the checkpoint
		other := stores.newProjector(t, "P")
		require.NoError(t, other.Init(initCounter))
		require.NoError(t, other.FromStream("S"))
		require.NoError(t, other.WhenAny(counter))
		require.NoError(t, other.Run(ctx, false))

		assert.Equal(t, 5, toInt(other.State()["count"]))
		assert.Equal(t, map[string]uint64{"S": 5}, other.StreamPositions())
	})
	t.Run("testNextReadStartsAfterPosition", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2", "E3", "E4", "E5", "E6", "E7", "E8", "E9", "E10")

		var numbers []uint64
		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(func(_ *HandlerContext, _ State, event *eventstore.Event) (State, error) {
			numbers = append(numbers, event.Number)
			return nil, nil
		}))

		require.NoError(t, p.Run(ctx, false))
		assert.Equal(t, map[string]uint64{"S": 10}, p.StreamPositions())
		require.Len(t, numbers, 10)

		stores.write(t, "S", "E11")
		require.NoError(t, p.Run(ctx, false))
		require.Len(t, numbers, 11)
		assert.EqualValues(t, 11, numbers[10])
		assert.Equal(t, map[string]uint64{"S": 11}, p.StreamPositions())
	})
	t.Run("testCheckpointCadence", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2", "E3", "E4", "E5", "E6", "E7")

		p := stores.newProjector(t, "P", WithPersistBlockSize(3))
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, false))

		// after events 3 and 6, then the remaining event at the end of the pass
		assert.EqualValues(t, 3, stores.documents.persists.Load())
		assert.Equal(t, 7, toInt(p.State()["count"]))
	})
	t.Run("testMultiHandlerFiltering", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "UserCreated", "UserRenamed", "UserCreated")

		p := stores.newProjector(t, "P", WithPersistBlockSize(1))
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.When(map[string]Handler{"UserCreated": counter}))
		require.NoError(t, p.Run(ctx, false))

		assert.Equal(t, 2, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"S": 3}, p.StreamPositions())
		// one checkpoint per handled event, none for the skipped one
		assert.EqualValues(t, 2, stores.documents.persists.Load())
	})
	t.Run("testMissingStreamIsSkipped", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStreams("missing", "S"))
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, false))

		assert.Equal(t, 1, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"missing": 0, "S": 1}, p.StreamPositions())
	})
	t.Run("testFromCategory", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "user-1", "UserCreated", "UserRenamed")
		stores.write(t, "user-2", "UserCreated")
		stores.write(t, "order-1", "OrderPlaced")

		var streams []string
		p := stores.newProjector(t, "users")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromCategory("user"))
		require.NoError(t, p.WhenAny(func(hctx *HandlerContext, state State, event *eventstore.Event) (State, error) {
			streams = append(streams, hctx.StreamName())
			return counter(hctx, state, event)
		}))
		require.NoError(t, p.Run(ctx, false))

		assert.Equal(t, 3, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"user-1": 2, "user-2": 1}, p.StreamPositions())
		assert.Equal(t, []string{"user-1", "user-1", "user-2"}, streams)
	})
	t.Run("testFromAll", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "user-1", "UserCreated")
		stores.write(t, "order-1", "OrderPlaced")
		stores.write(t, "$internal", "Tick")

		p := stores.newProjector(t, "all")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromAll())
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, false))

		assert.Equal(t, 2, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"order-1": 1, "user-1": 1}, p.StreamPositions())
	})
	t.Run("testLockNotAcquired", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")

		owner := stores.newProjector(t, "P", WithLockTimeout(time.Minute))
		require.NoError(t, owner.ensureCreated(ctx))
		require.NoError(t, owner.acquireLock(ctx))

		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))

		err := p.Run(ctx, false)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		assert.Empty(t, p.StreamPositions())

		// the owner still holds the lock
		assert.Equal(t, StatusRunning.String(), stores.projection(t, "P")[fieldStatus])

		require.NoError(t, owner.releaseLock(ctx))
		require.NoError(t, p.Run(ctx, false))
		assert.Equal(t, map[string]uint64{"S": 1}, p.StreamPositions())
	})
	t.Run("testExpiredLockIsTakenOver", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")

		now := time.Now()
		owner := stores.newProjector(t, "P", WithLockTimeout(time.Second), withClock(func() time.Time { return now }))
		require.NoError(t, owner.ensureCreated(ctx))
		require.NoError(t, owner.acquireLock(ctx))

		p := stores.newProjector(t, "P", withClock(func() time.Time { return now.Add(2 * time.Second) }))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, false))
	})
	t.Run("testStopFromHandler", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2", "E3", "E4")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(func(hctx *HandlerContext, state State, event *eventstore.Event) (State, error) {
			if event.Number == 2 {
				if err := hctx.Stop(); err != nil {
					return nil, err
				}
			}
			return counter(hctx, state, event)
		}))

		// keeps running until stopped
		require.NoError(t, p.Run(ctx, true))

		assert.True(t, p.IsStopped())
		assert.Equal(t, 2, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"S": 2}, p.StreamPositions())
		assert.Equal(t, StatusIdle.String(), stores.projection(t, "P")[fieldStatus])
	})
	t.Run("testHandlerError", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2")

		failure := errors.New("boom")
		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(func(*HandlerContext, State, *eventstore.Event) (State, error) {
			return nil, failure
		}))

		err := p.Run(ctx, true)
		assert.ErrorIs(t, err, failure)

		// the lock is released
		document := stores.projection(t, "P")
		assert.Equal(t, StatusIdle.String(), document[fieldStatus])
		assert.Nil(t, document[fieldLockedUntil])
	})
	t.Run("testHandlerPanic", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(func(*HandlerContext, State, *eventstore.Event) (State, error) {
			panic("boom")
		}))

		err := p.Run(ctx, false)
		var panicErr *handlerPanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "boom", panicErr.value)
		assert.Nil(t, stores.projection(t, "P")[fieldLockedUntil])
	})
	t.Run("testEmit", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2", "E3")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(func(hctx *HandlerContext, _ State, event *eventstore.Event) (State, error) {
			return nil, hctx.Emit(event)
		}))
		require.NoError(t, p.Run(ctx, false))

		emitted, err := stores.events.Load(ctx, "P", 1)
		require.NoError(t, err)
		require.Len(t, emitted, 3)
		assert.Equal(t, "E1", emitted[0].Name)
		assert.EqualValues(t, 3, emitted[2].Number)
	})
	t.Run("testRemoteStop", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))

		errCh := make(chan error, 1)
		go func() {
			errCh <- p.Run(ctx, true)
		}()

		manager := NewManager(stores.documents)
		require.Eventually(t, func() bool {
			return p.StreamPositions()["S"] == 1
		}, 5*time.Second, 10*time.Millisecond)
		require.NoError(t, manager.StopProjection(ctx, "P"))

		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("projection did not stop")
		}

		status, err := manager.FetchProjectionStatus(ctx, "P")
		require.NoError(t, err)
		assert.Equal(t, StatusIdle, status)
	})
	t.Run("testRemoteStopBeforeRun", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")
		require.NoError(t, stores.documents.Insert(ctx, DefaultProjectionsCollection, "P", documentstore.Document{
			fieldStatus: StatusStopping.String(),
		}))

		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, true))

		assert.True(t, p.IsStopped())
		assert.Empty(t, p.StreamPositions())
		assert.Equal(t, StatusIdle.String(), stores.projection(t, "P")[fieldStatus])
	})
	t.Run("testRemoteDeleteInclEmittedEvents", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")
		stores.write(t, "P", "Emitted")
		require.NoError(t, stores.documents.Insert(ctx, DefaultProjectionsCollection, "P", documentstore.Document{
			fieldStatus: StatusDeletingInclEmittedEvents.String(),
		}))

		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, true))

		assert.True(t, p.IsStopped())
		_, err := stores.documents.Read(ctx, DefaultProjectionsCollection, "P")
		assert.ErrorIs(t, err, documentstore.ErrNotFound)
		exists, err := stores.events.EventsStore.HasStream(ctx, "P")
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("testRemoteReset", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2", "E3")

		p := stores.newProjector(t, "P")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))
		require.NoError(t, p.Run(ctx, false))

		manager := NewManager(stores.documents)
		require.NoError(t, manager.ResetProjection(ctx, "P"))

		// the projection replays from scratch
		require.NoError(t, p.Run(ctx, false))
		assert.Equal(t, 3, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"S": 3}, p.StreamPositions())
	})
	t.Run("testConflictReturnedAfterLockRelease", func(t *testing.T) {
		ctx := context.TODO()
		stores := newTestStores(t)
		stores.write(t, "S", "E1")

		p, err := New("P", stores.events, &conflictingDocumentStore{Store: stores.documents},
			WithLogger(log.DiscardLogger), WithSleep(10*time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(counter))

		err = p.Run(ctx, true)
		require.ErrorIs(t, err, ErrProjectionAlreadyExists)
		assert.ErrorIs(t, err, documentstore.ErrConflict)

		document := stores.projection(t, "P")
		assert.Nil(t, document[fieldLockedUntil])
		assert.Equal(t, StatusIdle.String(), document[fieldStatus])
	})
	t.Run("testRemoteResetWhileRunning", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.TODO(), 10*time.Second)
		defer cancel()

		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2")
		manager := NewManager(stores.documents)

		handled := atomic.NewInt32(0)
		requested := atomic.NewBool(false)
		p := stores.newProjector(t, "P")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(func(hctx *HandlerContext, state State, event *eventstore.Event) (State, error) {
			handled.Inc()
			if requested.CompareAndSwap(false, true) {
				if err := manager.ResetProjection(hctx.Context(), "P"); err != nil {
					return nil, err
				}
			}
			return counter(hctx, state, event)
		}))

		// the reset replays the stream, then the run stops on the stopping status it leaves behind
		require.NoError(t, p.Run(ctx, true))
		assert.EqualValues(t, 4, handled.Load())
		assert.True(t, p.IsStopped())
		assert.Equal(t, 2, toInt(p.State()["count"]))
		assert.Equal(t, map[string]uint64{"S": 2}, p.StreamPositions())

		positions, err := manager.FetchProjectionStreamPositions(ctx, "P")
		require.NoError(t, err)
		assert.Equal(t, map[string]uint64{"S": 2}, positions)

		state, err := manager.FetchProjectionState(ctx, "P")
		require.NoError(t, err)
		assert.Equal(t, 2, toInt(state["count"]))

		status, err := manager.FetchProjectionStatus(ctx, "P")
		require.NoError(t, err)
		assert.Equal(t, StatusIdle, status)
	})
	t.Run("testRemoteDeleteWhileRunning", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.TODO(), 10*time.Second)
		defer cancel()

		stores := newTestStores(t)
		stores.write(t, "S", "E1", "E2")
		manager := NewManager(stores.documents)

		requested := atomic.NewBool(false)
		p := stores.newProjector(t, "P")
		require.NoError(t, p.FromStream("S"))
		require.NoError(t, p.WhenAny(func(hctx *HandlerContext, _ State, event *eventstore.Event) (State, error) {
			if requested.CompareAndSwap(false, true) {
				if err := manager.DeleteProjection(hctx.Context(), "P", true); err != nil {
					return nil, err
				}
			}
			return nil, hctx.Emit(event)
		}))

		require.NoError(t, p.Run(ctx, true))
		assert.True(t, p.IsStopped())

		_, err := stores.documents.Read(ctx, DefaultProjectionsCollection, "P")
		assert.ErrorIs(t, err, documentstore.ErrNotFound)

		exists, err := stores.events.EventsStore.HasStream(ctx, "P")
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("testNewStreamsAreDiscovered", func(t *testing.T) {
		stores := newTestStores(t)
		stores.write(t, "user-1", "UserCreated")

		p := stores.newProjector(t, "users")
		require.NoError(t, p.Init(initCounter))
		require.NoError(t, p.FromCategory("user"))
		require.NoError(t, p.WhenAny(counter))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- p.Run(ctx, true)
		}()

		require.Eventually(t, func() bool {
			return toInt(p.State()["count"]) == 1
		}, 5*time.Second, 10*time.Millisecond)

		stores.write(t, "user-2", "UserCreated", "UserRenamed")
		require.Eventually(t, func() bool {
			return toInt(p.State()["count"]) == 3
		}, 5*time.Second, 10*time.Millisecond)

		cancel()
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("projection did not stop")
		}

		// checkpoint and lock release survive the cancellation
		document := stores.projection(t, "users")
		assert.Equal(t, StatusIdle.String(), document[fieldStatus])
		assert.Nil(t, document[fieldLockedUntil])
		assert.EqualValues(t, 2, document[fieldPosition].(map[string]any)["user-2"])
	})
}

func TestReset(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.TODO()
	stores := newTestStores(t)
	stores.write(t, "S", "E0", "E1", "E2")

	p := stores.newProjector(t, "P")
	require.NoError(t, p.Init(initCounter))
	require.NoError(t, p.FromStream("S"))
	require.NoError(t, p.WhenAny(func(hctx *HandlerContext, state State, event *eventstore.Event) (State, error) {
		if err := hctx.Emit(event); err != nil {
			return nil, err
		}
		return counter(hctx, state, event)
	}))
	require.NoError(t, p.Run(ctx, false))
	require.Equal(t, 3, toInt(p.State()["count"]))

	require.NoError(t, p.Reset(ctx))

	assert.Equal(t, State{"count": 0}, p.State())
	assert.Empty(t, p.StreamPositions())

	document := stores.projection(t, "P")
	assert.Empty(t, document[fieldPosition])
	assert.EqualValues(t, 0, document[fieldState].(map[string]any)["count"])
	assert.Equal(t, StatusStopping.String(), document[fieldStatus])

	exists, err := stores.events.EventsStore.HasStream(ctx, "P")
	require.NoError(t, err)
	assert.False(t, exists)

	// resetting twice tolerates the missing stream
	require.NoError(t, p.Reset(ctx))
}

func TestDelete(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.TODO()
	stores := newTestStores(t)
	stores.write(t, "S", "E0", "E1")

	p := stores.newProjector(t, "P")
	require.NoError(t, p.Init(initCounter))
	require.NoError(t, p.FromStream("S"))
	require.NoError(t, p.WhenAny(func(hctx *HandlerContext, state State, event *eventstore.Event) (State, error) {
		if err := hctx.Emit(event); err != nil {
			return nil, err
		}
		return counter(hctx, state, event)
	}))
	require.NoError(t, p.Run(ctx, false))

	t.Run("testKeepEmittedEvents", func(t *testing.T) {
		require.NoError(t, p.Delete(ctx, false))
		assert.True(t, p.IsStopped())
		assert.Equal(t, State{"count": 0}, p.State())
		assert.Empty(t, p.StreamPositions())

		_, err := stores.documents.Read(ctx, DefaultProjectionsCollection, "P")
		assert.ErrorIs(t, err, documentstore.ErrNotFound)
		exists, err := stores.events.EventsStore.HasStream(ctx, "P")
		require.NoError(t, err)
		assert.True(t, exists)
	})
	t.Run("testDeleteEmittedEvents", func(t *testing.T) {
		// the projection document is already gone
		require.NoError(t, p.Delete(ctx, true))
		exists, err := stores.events.EventsStore.HasStream(ctx, "P")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.TODO()
	stores := newTestStores(t)
	p := stores.newProjector(t, "P")

	// no projection document yet
	require.NoError(t, p.Stop(ctx))
	assert.True(t, p.IsStopped())
	assert.Equal(t, StatusIdle, p.Status())
}

func TestConnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	stores := newTestStores(t)
	p := stores.newProjector(t, "P")
	require.NoError(t, p.Connect(context.TODO()))
}
