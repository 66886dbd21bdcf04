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
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
	"go.uber.org/atomic"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/internal/telemetry"
)

// DocumentStore keeps every collection in memory.
// NOTE: NOT RECOMMENDED FOR PRODUCTION CODE because all records are in memory and there is no durability.
// This is recommended for tests or PoC
type DocumentStore struct {
	// specifies the underlying database
	db *memdb.MemDB
	// this is only useful for tests
	KeepRecordsAfterDisconnect bool
	// hold the connection state to avoid multiple connection of the same instance
	connected *atomic.Bool
}

// enforce interface implementation
var _ documentstore.Store = (*DocumentStore)(nil)

// NewDocumentStore creates a new instance of DocumentStore
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		KeepRecordsAfterDisconnect: false,
		connected:                  atomic.NewBool(false),
	}
}

// Connect connects to the document store
func (s *DocumentStore) Connect(ctx context.Context) error {
	_, span := telemetry.SpanContext(ctx, "documentStore.Connect")
	defer span.End()

	if s.connected.Load() {
		return nil
	}

	// records survive a reconnection when requested
	if s.db == nil || !s.KeepRecordsAfterDisconnect {
		db, err := memdb.NewMemDB(documentsSchema)
		if err != nil {
			return err
		}
		s.db = db
	}

	s.connected.Store(true)
	return nil
}

// Disconnect disconnects the document store
func (s *DocumentStore) Disconnect(ctx context.Context) error {
	_, span := telemetry.SpanContext(ctx, "documentStore.Disconnect")
	defer span.End()

	if !s.connected.Load() {
		return nil
	}

	if !s.KeepRecordsAfterDisconnect {
		txn := s.db.Txn(true)
		if _, err := txn.DeleteAll(documentsTableName, documentsPK); err != nil {
			txn.Abort()
			return fmt.Errorf("failed to free memory resource: %w", err)
		}
		txn.Commit()
	}

	s.connected.Store(false)
	return nil
}

// Ping verifies a connection to the database is still alive, establishing a connection if necessary.
func (s *DocumentStore) Ping(ctx context.Context) error {
	spanCtx, span := telemetry.SpanContext(ctx, "documentStore.Ping")
	defer span.End()

	if !s.connected.Load() {
		return s.Connect(spanCtx)
	}
	return nil
}

// Insert adds a new document to the collection
func (s *DocumentStore) Insert(ctx context.Context, collection, key string, document documentstore.Document) error {
	_, span := telemetry.SpanContext(ctx, "documentStore.Insert")
	defer span.End()

	if !s.connected.Load() {
		return documentstore.ErrNotConnected
	}

	body, err := encode(documentstore.Merge(nil, document))
	if err != nil {
		return err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(documentsTableName, documentsPK, collection, key)
	if err != nil {
		return fmt.Errorf("failed to fetch document=(%s/%s): %w", collection, key, err)
	}

	if existing != nil {
		return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrConflict)
	}

	if err := txn.Insert(documentsTableName, &record{Collection: collection, Key: key, Body: body}); err != nil {
		return fmt.Errorf("failed to persist document=(%s/%s): %w", collection, key, err)
	}

	txn.Commit()
	return nil
}

// Read returns the document with the given key
func (s *DocumentStore) Read(ctx context.Context, collection, key string) (documentstore.Document, error) {
	_, span := telemetry.SpanContext(ctx, "documentStore.Read")
	defer span.End()

	if !s.connected.Load() {
		return nil, documentstore.ErrNotConnected
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(documentsTableName, documentsPK, collection, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document=(%s/%s): %w", collection, key, err)
	}

	if raw == nil {
		return nil, fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}

	return decode(raw.(*record))
}

// Update merges the given fields into the document
func (s *DocumentStore) Update(ctx context.Context, collection, key string, fields documentstore.Document) error {
	_, span := telemetry.SpanContext(ctx, "documentStore.Update")
	defer span.End()

	if !s.connected.Load() {
		return documentstore.ErrNotConnected
	}

	updated, err := s.update(collection, documentstore.Eq{Field: documentstore.KeyField, Value: key}, fields)
	if err != nil {
		return err
	}

	if updated == 0 {
		return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}
	return nil
}

// ConditionalUpdate merges the given fields into every matching document within a single write transaction
func (s *DocumentStore) ConditionalUpdate(ctx context.Context, collection string, where documentstore.Predicate, fields documentstore.Document) (int64, error) {
	_, span := telemetry.SpanContext(ctx, "documentStore.ConditionalUpdate")
	defer span.End()

	if !s.connected.Load() {
		return 0, documentstore.ErrNotConnected
	}

	return s.update(collection, where, fields)
}

// Delete removes the document with the given key
func (s *DocumentStore) Delete(ctx context.Context, collection, key string) error {
	_, span := telemetry.SpanContext(ctx, "documentStore.Delete")
	defer span.End()

	if !s.connected.Load() {
		return documentstore.ErrNotConnected
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(documentsTableName, documentsPK, collection, key)
	if err != nil {
		return fmt.Errorf("failed to fetch document=(%s/%s): %w", collection, key, err)
	}

	if raw == nil {
		return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}

	if err := txn.Delete(documentsTableName, raw); err != nil {
		return fmt.Errorf("failed to delete document=(%s/%s): %w", collection, key, err)
	}

	txn.Commit()
	return nil
}

// ListWhere returns the matching documents ordered by key
func (s *DocumentStore) ListWhere(ctx context.Context, collection string, where documentstore.Predicate) ([]documentstore.Document, error) {
	_, span := telemetry.SpanContext(ctx, "documentStore.ListWhere")
	defer span.End()

	if !s.connected.Load() {
		return nil, documentstore.ErrNotConnected
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	records, err := s.scan(txn, collection)
	if err != nil {
		return nil, err
	}

	var documents []documentstore.Document
	for _, rec := range records {
		document, err := decode(rec)
		if err != nil {
			return nil, err
		}

		matched, err := documentstore.Match(where, rec.Key, document)
		if err != nil {
			return nil, err
		}

		if matched {
			documents = append(documents, document)
		}
	}

	return documents, nil
}

// update applies the fields to the matching documents of the collection
func (s *DocumentStore) update(collection string, where documentstore.Predicate, fields documentstore.Document) (int64, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	records, err := s.scan(txn, collection)
	if err != nil {
		return 0, err
	}

	var updated int64
	for _, rec := range records {
		document, err := decode(rec)
		if err != nil {
			return 0, err
		}

		matched, err := documentstore.Match(where, rec.Key, document)
		if err != nil {
			return 0, err
		}

		if !matched {
			continue
		}

		body, err := encode(documentstore.Merge(document, fields))
		if err != nil {
			return 0, err
		}

		if err := txn.Insert(documentsTableName, &record{Collection: rec.Collection, Key: rec.Key, Body: body}); err != nil {
			return 0, fmt.Errorf("failed to update document=(%s/%s): %w", rec.Collection, rec.Key, err)
		}
		updated++
	}

	txn.Commit()
	return updated, nil
}

// scan returns the records of a collection sorted by key
func (s *DocumentStore) scan(txn *memdb.Txn, collection string) ([]*record, error) {
	it, err := txn.Get(documentsTableName, collectionIndex, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection=%s: %w", collection, err)
	}

	var records []*record
	for row := it.Next(); row != nil; row = it.Next() {
		if rec, ok := row.(*record); ok {
			records = append(records, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})

	return records, nil
}

func encode(document documentstore.Document) ([]byte, error) {
	delete(document, documentstore.KeyField)
	body, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return body, nil
}

func decode(rec *record) (documentstore.Document, error) {
	document := make(documentstore.Document)
	if err := json.Unmarshal(rec.Body, &document); err != nil {
		return nil, fmt.Errorf("failed to deserialize document=(%s/%s): %w", rec.Collection, rec.Key, err)
	}
	document[documentstore.KeyField] = rec.Key
	return document, nil
}
