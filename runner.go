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
	"time"

	"go.uber.org/multierr"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/internal/telemetry"
)

// Run runs the projection. With keepRunning unset, Run returns after a single
// pass over the tracked streams; otherwise it polls for new events until the
// projection is stopped, either locally, remotely or through ctx cancellation.
//
// Run fails with ErrLockNotAcquired when another process runs the projection.
// The lock is released on every exit path.
func (p *Projector) Run(ctx context.Context, keepRunning bool) (err error) {
	p.configMu.Lock()
	q, h := p.query, p.handlers
	p.configMu.Unlock()

	if q.kind == queryNone {
		return ErrNoQuery
	}

	if !h.isSet() {
		return ErrNoHandlers
	}

	spanCtx, span := telemetry.SpanContext(ctx, "projector.Run")
	defer span.End()

	done, err := p.applyRemoteStatus(spanCtx)
	if err != nil || done {
		return err
	}

	if err := p.ensureCreated(spanCtx); err != nil {
		return err
	}

	if err := p.acquireLock(spanCtx); err != nil {
		return err
	}

	defer func() {
		// release even when the caller gave up
		err = multierr.Append(err, p.releaseLock(context.WithoutCancel(spanCtx)))
		if err != nil {
			p.logger.Errorf("projection=%s exited: %v", p.name, err)
		}
	}()

	if err := p.preparePositions(spanCtx, q); err != nil {
		return err
	}

	if err := p.load(spanCtx); err != nil {
		return err
	}

	p.stopped.Store(false)
	p.eventCounter = 0

	for {
		if err := p.pass(spanCtx, q, h); err != nil {
			if errors.Is(err, documentstore.ErrConflict) {
				return fmt.Errorf("%w: %w", ErrProjectionAlreadyExists, err)
			}
			return err
		}

		if !keepRunning || p.stopped.Load() || spanCtx.Err() != nil {
			break
		}
	}

	return spanCtx.Err()
}

// applyRemoteStatus executes the command stored in the projection document.
// done is set when the run must not go further.
func (p *Projector) applyRemoteStatus(ctx context.Context) (done bool, err error) {
	status, err := p.fetchRemoteStatus(ctx)
	if err != nil {
		return false, err
	}

	switch status {
	case StatusStopping:
		return true, p.Stop(ctx)
	case StatusDeleting:
		return true, p.Delete(ctx, false)
	case StatusDeletingInclEmittedEvents:
		return true, p.Delete(ctx, true)
	case StatusResetting:
		return false, p.Reset(ctx)
	default:
		return false, nil
	}
}

// preparePositions starts tracking the streams matching the query
func (p *Projector) preparePositions(ctx context.Context, q query) error {
	streams, err := q.resolve(ctx, p.documents, p.settings.streamsCollection)
	if err != nil {
		return fmt.Errorf("failed to resolve the streams of projection=%s: %w", p.name, err)
	}
	p.positions.prepare(streams)
	return nil
}

// pass handles the new events of every tracked stream, then checkpoints,
// checks the remote status and looks for new streams.
func (p *Projector) pass(ctx context.Context, q query, h handlers) error {
	for _, streamName := range p.positions.streams() {
		events, err := p.events.Load(ctx, streamName, p.positions.get(streamName)+1)
		if err != nil {
			if errors.Is(err, eventstore.ErrStreamNotFound) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("failed to load stream=%s: %w", streamName, err)
		}

		if err := p.handleStream(ctx, streamName, events, h); err != nil {
			return err
		}

		if p.shouldStop(ctx) {
			break
		}
	}

	// the checkpoint is written even when the caller gave up
	tailCtx := context.WithoutCancel(ctx)
	if p.eventCounter == 0 {
		p.sleep(ctx)
		if err := p.renewLock(tailCtx); err != nil {
			return err
		}
	} else {
		if err := p.persist(tailCtx); err != nil {
			return err
		}
	}
	p.eventCounter = 0

	if ctx.Err() != nil {
		return nil
	}

	if _, err := p.applyRemoteStatus(ctx); err != nil {
		return err
	}

	return p.preparePositions(ctx, q)
}

// handleStream dispatches the events of a stream to the handlers.
// Positions move forward for every event, handled or not.
func (p *Projector) handleStream(ctx context.Context, streamName string, events []*eventstore.Event, h handlers) error {
	hctx := &HandlerContext{ctx: ctx, projector: p, streamName: streamName}
	for _, event := range events {
		p.positions.increment(streamName)

		handler, ok := h.lookup(event.Name)
		if !ok {
			continue
		}

		p.eventCounter++
		state, err := handleSafely(hctx, handler, p.State(), event)
		if err != nil {
			return fmt.Errorf("failed to handle event=%s (number=%d) of stream=%s: %w", event.Name, event.Number, streamName, err)
		}

		if state != nil {
			p.setState(state)
		}

		if p.eventCounter == p.settings.persistBlockSize {
			if err := p.persist(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			p.eventCounter = 0
		}

		if p.shouldStop(ctx) {
			break
		}
	}
	return nil
}

func (p *Projector) shouldStop(ctx context.Context) bool {
	return p.stopped.Load() || ctx.Err() != nil
}

// sleep pauses the projection unless ctx is done first
func (p *Projector) sleep(ctx context.Context) {
	if p.settings.sleep <= 0 {
		return
	}

	timer := time.NewTimer(p.settings.sleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
