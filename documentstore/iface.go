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

package documentstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when inserting a document whose key already exists
	ErrConflict = errors.New("document already exists")
	// ErrUnprocessable is returned when the store refuses to process a request for a document,
	// for instance when deleting a document in a collection that does not exist
	ErrUnprocessable = errors.New("unprocessable document request")
	// ErrNotConnected is returned when the store is used before Connect
	ErrNotConnected = errors.New("document store is not connected")
)

// KeyField is the reserved field name referring to the document key in predicates
// and in the documents returned by the store.
const KeyField = "_key"

// Document is a schemaless record. Values must be JSON friendly:
// nil, bool, numbers, string, []any and map[string]any.
// Numbers read back from a store may come back as float64.
type Document map[string]any

// Store defines a generic document store with conditional updates
type Store interface {
	// Connect connects to the document store
	Connect(ctx context.Context) error
	// Disconnect disconnects the document store
	Disconnect(ctx context.Context) error
	// Ping verifies a connection to the store is still alive, establishing a connection if necessary.
	Ping(ctx context.Context) error
	// Insert adds a new document to the collection.
	// It returns ErrConflict when the key already exists.
	Insert(ctx context.Context, collection, key string, document Document) error
	// Read returns the document with the given key. The returned document carries its key under KeyField.
	// It returns ErrNotFound when the document does not exist.
	Read(ctx context.Context, collection, key string) (Document, error)
	// Update merges the given top-level fields into the document.
	// It returns ErrNotFound when the document does not exist.
	Update(ctx context.Context, collection, key string, fields Document) error
	// ConditionalUpdate merges the given fields into every document of the collection matching the predicate
	// and returns the number of documents updated. Matching and updating happen atomically.
	ConditionalUpdate(ctx context.Context, collection string, where Predicate, fields Document) (int64, error)
	// Delete removes the document with the given key.
	// It returns ErrNotFound (or ErrUnprocessable) when the document does not exist.
	Delete(ctx context.Context, collection, key string) error
	// ListWhere returns the documents of the collection matching the predicate ordered by key.
	// A nil predicate matches every document.
	ListWhere(ctx context.Context, collection string, where Predicate) ([]Document, error)
}

// IsNotFound reports whether the error is one of the not-found kinds a store can return
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnprocessable)
}

// Merge returns a copy of the document with the given fields applied on top
func Merge(document Document, fields Document) Document {
	merged := make(Document, len(document)+len(fields))
	for k, v := range document {
		merged[k] = v
	}
	for k, v := range fields {
		if k == KeyField {
			continue
		}
		merged[k] = v
	}
	return merged
}
