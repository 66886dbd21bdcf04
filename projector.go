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

// Package projector runs event sourcing projections: it replays the events of
// an events store through handlers to build read models or derived streams,
// tracks per stream positions and checkpoints its progress in a document store.
// A lock stored in the projection document makes sure a single process
// advances a given projection at any time.
package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/tochemey/goakt/v2/log"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/internal/telemetry"
)

// Projector runs a named projection
type Projector struct {
	name      string
	events    eventstore.EventsStore
	documents documentstore.Store
	settings  *settings
	logger    log.Logger

	// guards the builder fields
	configMu    sync.Mutex
	query       query
	handlers    handlers
	initializer Initializer

	stateMu sync.RWMutex
	state   State

	positions    *positions
	emitter      *emitter
	eventCounter int

	status  *atomic.String
	stopped *atomic.Bool
}

// New creates a projection with the given name reading from the events store
// and checkpointing into the documents store. The name must be unique: it keys the
// projection document and names the stream the projection emits into.
func New(name string, events eventstore.EventsStore, documents documentstore.Store, opts ...Option) (*Projector, error) {
	if name == "" {
		return nil, errors.New("projection name is required")
	}

	if events == nil {
		return nil, errors.New("events store is not defined")
	}

	if documents == nil {
		return nil, errors.New("documents store is not defined")
	}

	config := defaultSettings()
	for _, opt := range opts {
		opt.Apply(config)
	}
	config.sanitize()

	emitter, err := newEmitter(events, name, config.cacheSize)
	if err != nil {
		return nil, err
	}

	return &Projector{
		name:      name,
		events:    events,
		documents: documents,
		settings:  config,
		logger:    config.logger,
		state:     State{},
		positions: newPositions(),
		emitter:   emitter,
		status:    atomic.NewString(StatusIdle.String()),
		stopped:   atomic.NewBool(false),
	}, nil
}

// Connect checks that both stores are reachable. The stores are pinged a few
// times with a backoff before giving up.
func (p *Projector) Connect(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.Connect")
	defer span.End()

	if err := pingStores(spanCtx, p.events, p.documents); err != nil {
		return fmt.Errorf("failed to connect projection=%s: %w", p.name, err)
	}
	return nil
}

// pingStores pings the given stores in parallel with retries
func pingStores(ctx context.Context, stores ...interface{ Ping(context.Context) error }) error {
	const (
		maxRetries   = 5
		initialDelay = time.Second
		maxDelay     = time.Second
	)

	retrier := retry.NewRetrier(maxRetries, initialDelay, maxDelay)
	return retrier.RunContext(ctx, func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		for _, store := range stores {
			store := store
			g.Go(func() error {
				return store.Ping(ctx)
			})
		}
		return g.Wait()
	})
}

// Init sets the function returning the initial state. It is invoked right away
// and again whenever the projection is reset or deleted.
func (p *Projector) Init(initializer Initializer) error {
	if initializer == nil {
		return ErrInvalidHandler
	}

	p.configMu.Lock()
	defer p.configMu.Unlock()

	if p.initializer != nil {
		return ErrAlreadyInitialized
	}

	p.initializer = initializer
	p.setState(p.initialState())
	return nil
}

// FromStream reads the events of the given stream
func (p *Projector) FromStream(streamName string) error {
	return p.setQuery(queryStreams, streamName)
}

// FromStreams reads the events of the given streams
func (p *Projector) FromStreams(streamNames ...string) error {
	return p.setQuery(queryStreams, streamNames...)
}

// FromCategory reads the events of every stream of the given category
func (p *Projector) FromCategory(category string) error {
	return p.setQuery(queryCategories, category)
}

// FromCategories reads the events of every stream of the given categories
func (p *Projector) FromCategories(categories ...string) error {
	return p.setQuery(queryCategories, categories...)
}

// FromAll reads the events of every stream but the system ones
func (p *Projector) FromAll() error {
	return p.setQuery(queryAll)
}

func (p *Projector) setQuery(kind queryKind, names ...string) error {
	p.configMu.Lock()
	defer p.configMu.Unlock()

	if p.query.kind != queryNone {
		return ErrQueryAlreadySet
	}

	q, err := newQuery(kind, names...)
	if err != nil {
		return err
	}
	p.query = q
	return nil
}

// When routes events to the handler registered for their name.
// Events without a handler are skipped.
func (p *Projector) When(byName map[string]Handler) error {
	p.configMu.Lock()
	defer p.configMu.Unlock()

	if p.handlers.isSet() {
		return ErrHandlersAlreadySet
	}

	if err := validateHandlers(byName); err != nil {
		return err
	}

	registered := make(map[string]Handler, len(byName))
	for eventName, handler := range byName {
		registered[eventName] = handler
	}
	p.handlers = handlers{byName: registered}
	return nil
}

// WhenAny routes every event to the given handler
func (p *Projector) WhenAny(handler Handler) error {
	if handler == nil {
		return ErrInvalidHandler
	}

	p.configMu.Lock()
	defer p.configMu.Unlock()

	if p.handlers.isSet() {
		return ErrHandlersAlreadySet
	}

	p.handlers = handlers{any: handler}
	return nil
}

// Emit appends the event to the stream named after the projection
func (p *Projector) Emit(ctx context.Context, event *eventstore.Event) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.Emit")
	defer span.End()
	return p.emitter.emit(spanCtx, event)
}

// LinkTo appends the event to the given stream, creating the stream when missing
func (p *Projector) LinkTo(ctx context.Context, streamName string, event *eventstore.Event) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.LinkTo")
	defer span.End()
	return p.emitter.linkTo(spanCtx, streamName, event)
}

// Stop stops the projection at the next event boundary and flags it idle
func (p *Projector) Stop(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.Stop")
	defer span.End()

	p.stopped.Store(true)
	err := p.updateRemote(spanCtx, documentstore.Document{fieldStatus: StatusIdle.String()})
	p.status.Store(StatusIdle.String())
	p.logger.Infof("projection=%s stopped", p.name)
	return err
}

// Reset clears the positions, restores the initial state and removes the
// emitted stream. The projection document is flagged stopping.
func (p *Projector) Reset(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.Reset")
	defer span.End()

	p.positions.reset()
	p.setState(p.initialState())

	err := p.updateRemote(spanCtx, documentstore.Document{
		fieldState:    map[string]any(p.State()),
		fieldStatus:   StatusStopping.String(),
		fieldPosition: map[string]any{},
	})
	if err != nil {
		return err
	}

	if err := p.deleteEmittedStream(spanCtx); err != nil {
		return err
	}

	p.logger.Infof("projection=%s reset", p.name)
	return nil
}

// Delete removes the projection document and stops the projection.
// The emitted stream is removed as well when deleteEmittedEvents is set.
func (p *Projector) Delete(ctx context.Context, deleteEmittedEvents bool) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.Delete")
	defer span.End()

	if err := p.deleteRemote(spanCtx); err != nil {
		return err
	}

	if deleteEmittedEvents {
		if err := p.deleteEmittedStream(spanCtx); err != nil {
			return err
		}
	}

	p.stopped.Store(true)
	p.setState(p.initialState())
	p.positions.reset()

	p.logger.Infof("projection=%s deleted", p.name)
	return nil
}

func (p *Projector) deleteEmittedStream(ctx context.Context) error {
	p.emitter.forget()
	if err := p.events.Delete(ctx, p.name); err != nil && !errors.Is(err, eventstore.ErrStreamNotFound) {
		return fmt.Errorf("failed to delete the stream of projection=%s: %w", p.name, err)
	}
	return nil
}

// Name returns the projection name
func (p *Projector) Name() string {
	return p.name
}

// State returns a copy of the current state
func (p *Projector) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state.Clone()
}

// StreamPositions returns the number of the last consumed event per stream
func (p *Projector) StreamPositions() map[string]uint64 {
	return p.positions.snapshot()
}

// Status returns the local status of the projection
func (p *Projector) Status() Status {
	return Status(p.status.Load())
}

// IsStopped reports whether the projection has been stopped
func (p *Projector) IsStopped() bool {
	return p.stopped.Load()
}

func (p *Projector) setState(state State) {
	p.stateMu.Lock()
	p.state = state.Clone()
	p.stateMu.Unlock()
}

func (p *Projector) initialState() State {
	if p.initializer == nil {
		return State{}
	}

	state := p.initializer()
	if state == nil {
		return State{}
	}
	return state
}
