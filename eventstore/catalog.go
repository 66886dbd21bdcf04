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
	"fmt"

	"github.com/tochemey/projector/documentstore"
)

// Catalog keeps the list of streams of an events store in a document collection.
// Projections resolve category and all-streams queries against it.
// A nil Catalog is valid and does nothing.
type Catalog struct {
	documents  documentstore.Store
	collection string
}

// NewCatalog creates a Catalog writing into the given collection.
// An empty collection name falls back to StreamsCollection.
func NewCatalog(documents documentstore.Store, collection string) *Catalog {
	if collection == "" {
		collection = StreamsCollection
	}
	return &Catalog{documents: documents, collection: collection}
}

// Register records the stream with its category
func (c *Catalog) Register(ctx context.Context, streamName string) error {
	if c == nil || c.documents == nil {
		return nil
	}

	var category any
	if name, ok := CategoryOf(streamName); ok {
		category = name
	}

	err := c.documents.Insert(ctx, c.collection, streamName, documentstore.Document{
		FieldRealStreamName: streamName,
		FieldCategory:       category,
	})
	if err != nil && !errors.Is(err, documentstore.ErrConflict) {
		return fmt.Errorf("failed to register stream=%s: %w", streamName, err)
	}
	return nil
}

// Unregister removes the stream from the catalog
func (c *Catalog) Unregister(ctx context.Context, streamName string) error {
	if c == nil || c.documents == nil {
		return nil
	}

	if err := c.documents.Delete(ctx, c.collection, streamName); err != nil && !documentstore.IsNotFound(err) {
		return fmt.Errorf("failed to unregister stream=%s: %w", streamName, err)
	}
	return nil
}
