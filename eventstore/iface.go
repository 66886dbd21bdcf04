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

package eventstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrStreamNotFound is returned when the requested stream does not exist
	ErrStreamNotFound = errors.New("stream not found")
	// ErrStreamAlreadyExists is returned when creating a stream that already exists
	ErrStreamAlreadyExists = errors.New("stream already exists")
	// ErrNotConnected is returned when the store is used before Connect
	ErrNotConnected = errors.New("events store is not connected")
)

const (
	// StreamsCollection is the default document collection holding the streams catalog.
	// Every stream created in an events store is registered in that collection so that
	// projections can resolve category and all-streams queries.
	StreamsCollection = "event_streams"
	// FieldRealStreamName is the catalog field holding the stream name
	FieldRealStreamName = "realStreamName"
	// FieldCategory is the catalog field holding the stream category
	FieldCategory = "category"
	// SystemStreamPrefix marks internal streams excluded from all-streams queries
	SystemStreamPrefix = "$"
)

// EventsStore defines the API to read from and write to the events store.
// Events in a stream are numbered from 1 and the numbering never has gaps.
type EventsStore interface {
	// Connect connects to the events store
	Connect(ctx context.Context) error
	// Disconnect disconnects the events store
	Disconnect(ctx context.Context) error
	// Ping verifies a connection to the store is still alive, establishing a connection if necessary.
	Ping(ctx context.Context) error
	// HasStream checks whether the given stream exists
	HasStream(ctx context.Context, streamName string) (bool, error)
	// Create creates a new stream with the given initial events.
	// It returns ErrStreamAlreadyExists when the stream is already defined.
	Create(ctx context.Context, streamName string, events []*Event) error
	// AppendTo appends events to an existing stream.
	// It returns ErrStreamNotFound when the stream does not exist.
	AppendTo(ctx context.Context, streamName string, events []*Event) error
	// Load returns the events of a stream starting at the given event number (inclusive).
	// It returns ErrStreamNotFound when the stream does not exist.
	Load(ctx context.Context, streamName string, fromNumber uint64) ([]*Event, error)
	// Delete removes a stream and all its events.
	// It returns ErrStreamNotFound when the stream does not exist.
	Delete(ctx context.Context, streamName string) error
}

// CategoryOf returns the category of a stream name, that is the part before the first dash.
// The boolean is false when the stream name does not carry any category.
func CategoryOf(streamName string) (string, bool) {
	pos := strings.Index(streamName, "-")
	if pos <= 0 {
		return "", false
	}
	return streamName[:pos], true
}

// IsSystemStream reports whether the stream is an internal one
func IsSystemStream(streamName string) bool {
	return strings.HasPrefix(streamName, SystemStreamPrefix)
}
