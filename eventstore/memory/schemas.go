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

package memory

import (
	"github.com/hashicorp/go-memdb"

	"github.com/tochemey/projector/eventstore"
)

// stream represents a stream entry
type stream struct {
	// Name is the stream name
	Name string
	// LastNumber is the number of the last event appended to the stream
	LastNumber uint64
}

// journal represents an event recorded in a stream
type journal struct {
	// StreamName is the stream the event belongs to
	StreamName string
	// Number is the event number within the stream
	Number uint64
	// Event is a private copy of the recorded event
	Event *eventstore.Event
}

const (
	streamsTableName = "streams"
	streamsPK        = "id"

	journalTableName = "events"
	journalPK        = "id"
	streamNameIndex  = "streamName"
)

var (
	// journalSchema defines the events store schema
	journalSchema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			streamsTableName: {
				Name: streamsTableName,
				Indexes: map[string]*memdb.IndexSchema{
					streamsPK: {
						Name:         streamsPK,
						AllowMissing: false,
						Unique:       true,
						Indexer: &memdb.StringFieldIndex{
							Field:     "Name",
							Lowercase: false,
						},
					},
				},
			},
			journalTableName: {
				Name: journalTableName,
				Indexes: map[string]*memdb.IndexSchema{
					journalPK: {
						Name:         journalPK,
						AllowMissing: false,
						Unique:       true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{
									Field:     "StreamName",
									Lowercase: false,
								},
								&memdb.UintFieldIndex{
									Field: "Number",
								},
							},
							AllowMissing: false,
						},
					},
					streamNameIndex: {
						Name:         streamNameIndex,
						AllowMissing: false,
						Unique:       false,
						Indexer: &memdb.StringFieldIndex{
							Field:     "StreamName",
							Lowercase: false,
						},
					},
				},
			},
		},
	}
)
