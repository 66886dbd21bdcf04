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
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/atomic"

	"github.com/tochemey/projector/eventstore"
)

// emitter writes the events a projection emits or links into output streams.
// It remembers the streams it already wrote to in a bounded cache so that
// most appends skip the existence check. The cache is only an optimization:
// an append to a stream deleted behind its back falls back to a create.
type emitter struct {
	events     eventstore.EventsStore
	streamName string
	// known streams. Contains does not refresh recency hence the
	// oldest added stream is the first one evicted
	known         *lru.Cache
	streamCreated *atomic.Bool
}

func newEmitter(events eventstore.EventsStore, streamName string, cacheSize int) (*emitter, error) {
	known, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create the streams cache: %w", err)
	}

	return &emitter{
		events:        events,
		streamName:    streamName,
		known:         known,
		streamCreated: atomic.NewBool(false),
	}, nil
}

// emit appends the event to the projection own stream, creating it on first use
func (e *emitter) emit(ctx context.Context, event *eventstore.Event) error {
	if !e.streamCreated.Load() {
		exists, err := e.events.HasStream(ctx, e.streamName)
		if err != nil {
			return fmt.Errorf("failed to check stream=%s: %w", e.streamName, err)
		}

		if !exists {
			if err := e.events.Create(ctx, e.streamName, nil); err != nil && !errors.Is(err, eventstore.ErrStreamAlreadyExists) {
				return fmt.Errorf("failed to create stream=%s: %w", e.streamName, err)
			}
		}
		e.streamCreated.Store(true)
		e.known.Add(e.streamName, struct{}{})
	}

	return e.linkTo(ctx, e.streamName, event)
}

// linkTo appends the event to the given stream, creating it when missing
func (e *emitter) linkTo(ctx context.Context, streamName string, event *eventstore.Event) error {
	if event == nil {
		return fmt.Errorf("cannot link a nil event to stream=%s", streamName)
	}

	appendable := e.known.Contains(streamName)
	if !appendable {
		e.known.Add(streamName, struct{}{})
		exists, err := e.events.HasStream(ctx, streamName)
		if err != nil {
			return fmt.Errorf("failed to check stream=%s: %w", streamName, err)
		}
		appendable = exists
	}

	events := []*eventstore.Event{event.Clone()}
	if appendable {
		err := e.events.AppendTo(ctx, streamName, events)
		if err == nil {
			return nil
		}
		if !errors.Is(err, eventstore.ErrStreamNotFound) {
			return fmt.Errorf("failed to append to stream=%s: %w", streamName, err)
		}
	}

	err := e.events.Create(ctx, streamName, events)
	if errors.Is(err, eventstore.ErrStreamAlreadyExists) {
		// created concurrently
		err = e.events.AppendTo(ctx, streamName, events)
	}
	if err != nil {
		return fmt.Errorf("failed to write to stream=%s: %w", streamName, err)
	}
	return nil
}

// forget drops what the emitter knows about the projection own stream
func (e *emitter) forget() {
	e.known.Remove(e.streamName)
	e.streamCreated.Store(false)
}
