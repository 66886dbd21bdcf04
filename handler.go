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
	"maps"

	"github.com/tochemey/projector/eventstore"
)

// State is the read model a projection folds events into.
// Values must be JSON friendly since the state is persisted in the document store.
// Numbers restored from a checkpoint come back as float64.
type State map[string]any

// Clone returns a shallow copy of the state
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Handler folds an event into the projection state.
// The returned state replaces the current one. A nil state leaves it unchanged.
// Returning an error aborts the projection run.
type Handler func(hctx *HandlerContext, state State, event *eventstore.Event) (State, error)

// Initializer returns the initial state of a projection
type Initializer func() State

// HandlerContext is handed to every handler invocation
type HandlerContext struct {
	ctx        context.Context
	projector  *Projector
	streamName string
}

// Context returns the context of the running projection
func (h *HandlerContext) Context() context.Context {
	return h.ctx
}

// StreamName returns the name of the stream the event has been read from
func (h *HandlerContext) StreamName() string {
	return h.streamName
}

// Stop stops the projection once the current event has been handled
func (h *HandlerContext) Stop() error {
	return h.projector.Stop(h.ctx)
}

// Emit appends the event to the stream named after the projection
func (h *HandlerContext) Emit(event *eventstore.Event) error {
	return h.projector.Emit(h.ctx, event)
}

// LinkTo appends the event to the given stream
func (h *HandlerContext) LinkTo(streamName string, event *eventstore.Event) error {
	return h.projector.LinkTo(h.ctx, streamName, event)
}

// handlers holds either a single handler receiving every event
// or handlers keyed by event name
type handlers struct {
	any    Handler
	byName map[string]Handler
}

func (h handlers) isSet() bool {
	return h.any != nil || len(h.byName) > 0
}

// lookup returns the handler of the given event name
func (h handlers) lookup(eventName string) (Handler, bool) {
	if h.any != nil {
		return h.any, true
	}
	handler, ok := h.byName[eventName]
	return handler, ok
}

// handleSafely invokes the handler and converts panics into errors.
func handleSafely(hctx *HandlerContext, handler Handler, state State, event *eventstore.Event) (newState State, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			newState = nil
			err = newHandlerPanicError(recovered)
		}
	}()

	return handler(hctx, state, event)
}

func validateHandlers(byName map[string]Handler) error {
	if len(byName) == 0 {
		return ErrNoHandlers
	}

	for eventName, handler := range byName {
		if eventName == "" {
			return ErrInvalidEventName
		}
		if handler == nil {
			return fmt.Errorf("event=%s: %w", eventName, ErrInvalidHandler)
		}
	}
	return nil
}
