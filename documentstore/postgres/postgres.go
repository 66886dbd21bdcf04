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

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/atomic"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/internal/postgres"
	"github.com/tochemey/projector/internal/sqlfilter"
	"github.com/tochemey/projector/internal/telemetry"
)

// unique_violation
const uniqueViolation = "23505"

// row is a documents table record
type row struct {
	DocKey string
	Body   []byte
}

// DocumentStore implements the documentstore.Store interface
// and keeps every collection in a single JSONB table
type DocumentStore struct {
	db        postgres.Postgres
	sb        sq.StatementBuilderType
	schema    *SchemaUtils
	tableName string
	dialect   sqlfilter.Postgres
	// hold the connection state to avoid multiple connection of the same instance
	connected *atomic.Bool
}

// enforce interface implementation
var _ documentstore.Store = (*DocumentStore)(nil)

// NewDocumentStore creates a new instance of DocumentStore.
// The documents table is created on Connect when it does not exist.
func NewDocumentStore(config *postgres.Config) *DocumentStore {
	db := postgres.New(config)
	return &DocumentStore{
		db:        db,
		sb:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		schema:    NewSchemaUtils(db, defaultTableName),
		tableName: pq.QuoteIdentifier(defaultTableName),
		dialect:   sqlfilter.Postgres{KeyColumn: "doc_key", BodyColumn: "body"},
		connected: atomic.NewBool(false),
	}
}

// Connect connects to the underlying postgres database
func (s *DocumentStore) Connect(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Connect")
	defer span.End()

	if s.connected.Load() {
		return nil
	}

	if err := s.db.Connect(ctx); err != nil {
		return err
	}

	if err := s.schema.CreateTable(ctx); err != nil {
		return fmt.Errorf("failed to create the documents table: %w", err)
	}

	s.connected.Store(true)
	return nil
}

// Disconnect disconnects from the underlying postgres database
func (s *DocumentStore) Disconnect(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Disconnect")
	defer span.End()

	if !s.connected.Load() {
		return nil
	}

	if err := s.db.Disconnect(ctx); err != nil {
		return err
	}

	s.connected.Store(false)
	return nil
}

// Ping verifies a connection to the database is still alive, establishing a connection if necessary.
func (s *DocumentStore) Ping(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Ping")
	defer span.End()

	if !s.connected.Load() {
		return s.Connect(ctx)
	}

	return s.db.Ping(ctx)
}

// Insert adds a new document to the collection
func (s *DocumentStore) Insert(ctx context.Context, collection, key string, document documentstore.Document) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Insert")
	defer span.End()

	if !s.connected.Load() {
		return documentstore.ErrNotConnected
	}

	body, err := encode(document)
	if err != nil {
		return err
	}

	query, args, err := s.sb.
		Insert(s.tableName).
		Columns("collection", "doc_key", "body").
		Values(collection, key, sq.Expr("?::jsonb", body)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build the insert sql statement: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrConflict)
		}
		return fmt.Errorf("failed to insert document=(%s/%s): %w", collection, key, err)
	}

	return nil
}

// Read returns the document with the given key
func (s *DocumentStore) Read(ctx context.Context, collection, key string) (documentstore.Document, error) {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Read")
	defer span.End()

	if !s.connected.Load() {
		return nil, documentstore.ErrNotConnected
	}

	query, args, err := s.sb.
		Select("doc_key", "body").
		From(s.tableName).
		Where(sq.Eq{"collection": collection, "doc_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build the select sql statement: %w", err)
	}

	var rows []*row
	if err := s.db.SelectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch document=(%s/%s): %w", collection, key, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}

	return decode(rows[0])
}

// Update merges the given fields into the document
func (s *DocumentStore) Update(ctx context.Context, collection, key string, fields documentstore.Document) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Update")
	defer span.End()

	if !s.connected.Load() {
		return documentstore.ErrNotConnected
	}

	updated, err := s.update(ctx, collection, sq.Eq{"doc_key": key}, fields)
	if err != nil {
		return err
	}

	if updated == 0 {
		return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}
	return nil
}

// ConditionalUpdate merges the given fields into every matching document.
// Postgres re-evaluates the condition on rows locked by a concurrent update, which makes it a compare-and-swap.
func (s *DocumentStore) ConditionalUpdate(ctx context.Context, collection string, where documentstore.Predicate, fields documentstore.Document) (int64, error) {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.ConditionalUpdate")
	defer span.End()

	if !s.connected.Load() {
		return 0, documentstore.ErrNotConnected
	}

	cond, err := sqlfilter.Where(where, s.dialect)
	if err != nil {
		return 0, err
	}

	return s.update(ctx, collection, cond, fields)
}

// Delete removes the document with the given key
func (s *DocumentStore) Delete(ctx context.Context, collection, key string) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Delete")
	defer span.End()

	if !s.connected.Load() {
		return documentstore.ErrNotConnected
	}

	query, args, err := s.sb.
		Delete(s.tableName).
		Where(sq.Eq{"collection": collection, "doc_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build the delete sql statement: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete document=(%s/%s): %w", collection, key, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}
	return nil
}

// ListWhere returns the matching documents ordered by key
func (s *DocumentStore) ListWhere(ctx context.Context, collection string, where documentstore.Predicate) ([]documentstore.Document, error) {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.ListWhere")
	defer span.End()

	if !s.connected.Load() {
		return nil, documentstore.ErrNotConnected
	}

	statement := s.sb.
		Select("doc_key", "body").
		From(s.tableName).
		Where(sq.Eq{"collection": collection}).
		OrderBy(`doc_key COLLATE "C" ASC`)

	cond, err := sqlfilter.Where(where, s.dialect)
	if err != nil {
		return nil, err
	}

	if cond != nil {
		statement = statement.Where(cond)
	}

	query, args, err := statement.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build the select sql statement: %w", err)
	}

	var rows []*row
	if err := s.db.SelectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch collection=%s: %w", collection, err)
	}

	documents := make([]documentstore.Document, 0, len(rows))
	for _, rec := range rows {
		document, err := decode(rec)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}

	return documents, nil
}

func (s *DocumentStore) update(ctx context.Context, collection string, cond sq.Sqlizer, fields documentstore.Document) (int64, error) {
	body, err := encode(fields)
	if err != nil {
		return 0, err
	}

	statement := s.sb.
		Update(s.tableName).
		Set("body", sq.Expr("body || ?::jsonb", body)).
		Where(sq.Eq{"collection": collection})

	if cond != nil {
		statement = statement.Where(cond)
	}

	query, args, err := statement.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build the update sql statement: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update collection=%s: %w", collection, err)
	}

	return tag.RowsAffected(), nil
}

func encode(document documentstore.Document) (string, error) {
	body, err := json.Marshal(documentstore.Merge(nil, document))
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return string(body), nil
}

func decode(rec *row) (documentstore.Document, error) {
	document := make(documentstore.Document)
	if err := json.Unmarshal(rec.Body, &document); err != nil {
		return nil, fmt.Errorf("failed to deserialize document=%s: %w", rec.DocKey, err)
	}
	document[documentstore.KeyField] = rec.DocKey
	return document, nil
}
