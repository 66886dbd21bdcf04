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

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/internal/telemetry"
)

// projection document fields
const (
	fieldPosition    = "position"
	fieldState       = "state"
	fieldStatus      = "status"
	fieldLockedUntil = "lockedUntil"
)

// ensureCreated inserts the projection document unless it already exists
func (p *Projector) ensureCreated(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.ensureCreated")
	defer span.End()

	err := p.documents.Insert(spanCtx, p.settings.projectionsCollection, p.name, documentstore.Document{
		fieldPosition:    nil,
		fieldState:       nil,
		fieldStatus:      p.Status().String(),
		fieldLockedUntil: nil,
	})
	switch {
	case err == nil:
		p.logger.Debugf("projection=%s created", p.name)
		return nil
	case errors.Is(err, documentstore.ErrConflict), documentstore.IsNotFound(err):
		return nil
	default:
		return fmt.Errorf("failed to create projection=%s: %w", p.name, err)
	}
}

// read returns the projection document or nil when it does not exist
func (p *Projector) read(ctx context.Context) (documentstore.Document, error) {
	document, err := p.documents.Read(ctx, p.settings.projectionsCollection, p.name)
	if err != nil {
		if documentstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read projection=%s: %w", p.name, err)
	}
	return document, nil
}

// load restores the persisted positions and the persisted state when it is not empty
func (p *Projector) load(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.load")
	defer span.End()

	document, err := p.read(spanCtx)
	if err != nil || document == nil {
		return err
	}

	position, hasPosition := document[fieldPosition]
	state, hasState := document[fieldState]
	if !hasPosition || !hasState || position == nil || state == nil {
		return nil
	}

	persisted, err := parsePositions(position)
	if err != nil {
		return fmt.Errorf("failed to load projection=%s: %w", p.name, err)
	}
	p.positions.merge(persisted)

	if restored, ok := state.(map[string]any); ok && len(restored) > 0 {
		p.setState(restored)
	}

	p.logger.Debugf("projection=%s loaded at position=%v", p.name, persisted)
	return nil
}

// persist writes the positions and the state, and extends the lock in the same update
func (p *Projector) persist(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.persist")
	defer span.End()

	err := p.documents.Update(spanCtx, p.settings.projectionsCollection, p.name, documentstore.Document{
		fieldPosition:    p.positions.document(),
		fieldState:       map[string]any(p.State()),
		fieldLockedUntil: p.lockedUntil(p.settings.clock()),
	})
	if err != nil {
		if documentstore.IsNotFound(err) {
			p.logger.Warnf("cannot persist projection=%s: projection document not found", p.name)
			return nil
		}
		return fmt.Errorf("failed to persist projection=%s: %w", p.name, err)
	}

	p.logger.Debugf("projection=%s persisted", p.name)
	return nil
}

// updateRemote merges the fields into the projection document, ignoring a missing document
func (p *Projector) updateRemote(ctx context.Context, fields documentstore.Document) error {
	err := p.documents.Update(ctx, p.settings.projectionsCollection, p.name, fields)
	if err != nil && !documentstore.IsNotFound(err) {
		return fmt.Errorf("failed to update projection=%s: %w", p.name, err)
	}
	return nil
}

// deleteRemote removes the projection document, ignoring a missing document
func (p *Projector) deleteRemote(ctx context.Context) error {
	err := p.documents.Delete(ctx, p.settings.projectionsCollection, p.name)
	if err != nil && !documentstore.IsNotFound(err) {
		return fmt.Errorf("failed to delete projection=%s: %w", p.name, err)
	}
	return nil
}

// fetchRemoteStatus returns the status stored in the projection document.
// A missing document or status reads as running.
func (p *Projector) fetchRemoteStatus(ctx context.Context) (Status, error) {
	spanCtx, span := telemetry.SpanContext(ctx, "projector.fetchRemoteStatus")
	defer span.End()

	document, err := p.read(spanCtx)
	if err != nil {
		return "", err
	}
	return statusOf(document)
}

func statusOf(document documentstore.Document) (Status, error) {
	raw, _ := document[fieldStatus].(string)
	if raw == "" {
		return StatusRunning, nil
	}

	status := Status(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown projection status %q", raw)
	}
	return status, nil
}
