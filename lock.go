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
	"time"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/internal/telemetry"
)

// lockedUntilLayout is the UTC timestamp layout of the lock expiry.
// Fixed width so that expiries compare lexicographically.
const lockedUntilLayout = "2006-01-02T15:04:05.000000"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(lockedUntilLayout)
}

// lockedUntil returns the lock expiry starting from now
func (p *Projector) lockedUntil(now time.Time) string {
	return formatTimestamp(now.Add(p.settings.lockTimeout))
}

// lockPredicate matches the projection document when its lock is free or expired
func lockPredicate(name string, now time.Time) documentstore.Predicate {
	return documentstore.And{
		documentstore.Eq{Field: documentstore.KeyField, Value: name},
		documentstore.Or{
			documentstore.IsNull{Field: fieldLockedUntil},
			documentstore.Lt{Field: fieldLockedUntil, Value: formatTimestamp(now)},
		},
	}
}

// acquireLock takes the projection lock and flags the projection as running.
// It fails with ErrLockNotAcquired when another process holds a valid lock.
func (p *Projector) acquireLock(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.acquireLock")
	defer span.End()

	now := p.settings.clock()
	updated, err := p.documents.ConditionalUpdate(spanCtx, p.settings.projectionsCollection, lockPredicate(p.name, now), documentstore.Document{
		fieldLockedUntil: p.lockedUntil(now),
		fieldStatus:      StatusRunning.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to acquire the lock of projection=%s: %w", p.name, err)
	}

	if updated == 0 {
		return fmt.Errorf("projection=%s: %w", p.name, ErrLockNotAcquired)
	}

	p.status.Store(StatusRunning.String())
	p.logger.Debugf("lock of projection=%s acquired", p.name)
	return nil
}

// renewLock extends the projection lock
func (p *Projector) renewLock(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.renewLock")
	defer span.End()

	err := p.documents.Update(spanCtx, p.settings.projectionsCollection, p.name, documentstore.Document{
		fieldLockedUntil: p.lockedUntil(p.settings.clock()),
	})
	if err != nil {
		if documentstore.IsNotFound(err) {
			p.logger.Warnf("cannot renew the lock of projection=%s: projection document not found", p.name)
			return nil
		}
		return fmt.Errorf("failed to renew the lock of projection=%s: %w", p.name, err)
	}
	return nil
}

// releaseLock frees the projection lock and flags the projection as idle
func (p *Projector) releaseLock(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.releaseLock")
	defer span.End()

	err := p.documents.Update(spanCtx, p.settings.projectionsCollection, p.name, documentstore.Document{
		fieldStatus:      StatusIdle.String(),
		fieldLockedUntil: nil,
	})
	if err != nil && !documentstore.IsNotFound(err) {
		return fmt.Errorf("failed to release the lock of projection=%s: %w", p.name, err)
	}

	p.status.Store(StatusIdle.String())
	p.logger.Debugf("lock of projection=%s released", p.name)
	return nil
}
