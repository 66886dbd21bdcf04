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

	"github.com/tochemey/goakt/v2/log"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/internal/telemetry"
)

// Manager controls projections remotely through their projection document.
// A running projection picks the requested status up at the end of its current pass.
type Manager struct {
	documents documentstore.Store
	settings  *settings
	opts      []Option
	logger    log.Logger
}

// NewManager creates a Manager over the given documents store.
// The options are handed down to the projections it creates.
func NewManager(documents documentstore.Store, opts ...Option) *Manager {
	config := defaultSettings()
	for _, opt := range opts {
		opt.Apply(config)
	}
	config.sanitize()

	return &Manager{
		documents: documents,
		settings:  config,
		opts:      opts,
		logger:    config.logger,
	}
}

// Connect checks that the documents store is reachable
func (m *Manager) Connect(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.Connect")
	defer span.End()

	if err := pingStores(spanCtx, m.documents); err != nil {
		return fmt.Errorf("failed to connect the projection manager: %w", err)
	}
	return nil
}

// CreateProjection creates a projection sharing the manager documents store and options
func (m *Manager) CreateProjection(name string, events eventstore.EventsStore, opts ...Option) (*Projector, error) {
	all := make([]Option, 0, len(m.opts)+len(opts))
	all = append(all, m.opts...)
	all = append(all, opts...)
	return New(name, events, m.documents, all...)
}

// StopProjection asks the projection to stop
func (m *Manager) StopProjection(ctx context.Context, name string) error {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.StopProjection")
	defer span.End()
	return m.updateStatus(spanCtx, name, StatusStopping)
}

// ResetProjection asks the projection to reset
func (m *Manager) ResetProjection(ctx context.Context, name string) error {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.ResetProjection")
	defer span.End()
	return m.updateStatus(spanCtx, name, StatusResetting)
}

// DeleteProjection asks the projection to delete itself, and its emitted events when deleteEmittedEvents is set
func (m *Manager) DeleteProjection(ctx context.Context, name string, deleteEmittedEvents bool) error {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.DeleteProjection")
	defer span.End()

	status := StatusDeleting
	if deleteEmittedEvents {
		status = StatusDeletingInclEmittedEvents
	}
	return m.updateStatus(spanCtx, name, status)
}

// FetchProjectionNames returns the sorted names of the projections starting with the given prefix.
// An empty prefix returns every projection.
func (m *Manager) FetchProjectionNames(ctx context.Context, prefix string) ([]string, error) {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.FetchProjectionNames")
	defer span.End()

	var where documentstore.Predicate
	if prefix != "" {
		where = documentstore.HasPrefix{Field: documentstore.KeyField, Prefix: prefix}
	}

	documents, err := m.documents.ListWhere(spanCtx, m.settings.projectionsCollection, where)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch the projection names: %w", err)
	}

	names := make([]string, 0, len(documents))
	for _, document := range documents {
		if name, ok := document[documentstore.KeyField].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// FetchProjectionStatus returns the status stored in the projection document
func (m *Manager) FetchProjectionStatus(ctx context.Context, name string) (Status, error) {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.FetchProjectionStatus")
	defer span.End()

	document, err := m.read(spanCtx, name)
	if err != nil {
		return "", err
	}
	return statusOf(document)
}

// FetchProjectionState returns the last persisted state of the projection
func (m *Manager) FetchProjectionState(ctx context.Context, name string) (State, error) {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.FetchProjectionState")
	defer span.End()

	document, err := m.read(spanCtx, name)
	if err != nil {
		return nil, err
	}

	state, _ := document[fieldState].(map[string]any)
	return State(state).Clone(), nil
}

// FetchProjectionStreamPositions returns the last persisted positions of the projection
func (m *Manager) FetchProjectionStreamPositions(ctx context.Context, name string) (map[string]uint64, error) {
	spanCtx, span := telemetry.SpanContext(ctx, "manager.FetchProjectionStreamPositions")
	defer span.End()

	document, err := m.read(spanCtx, name)
	if err != nil {
		return nil, err
	}

	positions, err := parsePositions(document[fieldPosition])
	if err != nil {
		return nil, fmt.Errorf("projection=%s: %w", name, err)
	}
	return positions, nil
}

func (m *Manager) read(ctx context.Context, name string) (documentstore.Document, error) {
	document, err := m.documents.Read(ctx, m.settings.projectionsCollection, name)
	if err != nil {
		if documentstore.IsNotFound(err) {
			return nil, fmt.Errorf("projection=%s: %w", name, ErrProjectionNotFound)
		}
		return nil, fmt.Errorf("failed to read projection=%s: %w", name, err)
	}
	return document, nil
}

func (m *Manager) updateStatus(ctx context.Context, name string, status Status) error {
	err := m.documents.Update(ctx, m.settings.projectionsCollection, name, documentstore.Document{fieldStatus: status.String()})
	if err != nil {
		if documentstore.IsNotFound(err) {
			return fmt.Errorf("projection=%s: %w", name, ErrProjectionNotFound)
		}
		return fmt.Errorf("failed to update the status of projection=%s: %w", name, err)
	}

	m.logger.Debugf("projection=%s flagged %s", name, status)
	return nil
}
