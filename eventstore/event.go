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
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event is a message recorded in a stream
type Event struct {
	// ID uniquely identifies the event. The same event linked into several
	// streams keeps its ID.
	ID string
	// Name is the event type name. It is used to route the event to a handler
	Name string
	// Number is the position of the event in the stream it has been loaded from.
	// It is assigned by the events store on write and starts at 1.
	Number uint64
	// Payload holds the event data
	Payload *structpb.Struct
	// Metadata holds free form headers
	Metadata map[string]string
	// Timestamp is the creation time in unix milliseconds
	Timestamp int64
}

// NewEvent creates an event with the given name and payload.
// The payload values must be convertible by structpb.
func NewEvent(name string, payload map[string]any) (*Event, error) {
	if name == "" {
		return nil, fmt.Errorf("event name is required")
	}

	data, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload for event=%s: %w", name, err)
	}

	return &Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   data,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UTC().UnixMilli(),
	}, nil
}

// WithNumber returns a copy of the event carrying the given stream number
func (e *Event) WithNumber(number uint64) *Event {
	clone := e.Clone()
	clone.Number = number
	return clone
}

// Clone returns a deep copy of the event
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}

	clone := &Event{
		ID:        e.ID,
		Name:      e.Name,
		Number:    e.Number,
		Metadata:  maps.Clone(e.Metadata),
		Timestamp: e.Timestamp,
	}

	if e.Payload != nil {
		clone.Payload = proto.Clone(e.Payload).(*structpb.Struct)
	}

	return clone
}

// Data returns the payload as a plain map
func (e *Event) Data() map[string]any {
	if e == nil || e.Payload == nil {
		return map[string]any{}
	}
	return e.Payload.AsMap()
}
