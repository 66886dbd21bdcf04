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

// Package sqlite provides a documentstore.Store backed by an embedded SQLite database.
// Documents are kept as JSON text and filtered with the JSON1 functions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"go.uber.org/atomic"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/internal/sqlfilter"
	"github.com/tochemey/projector/internal/telemetry"
)

const (
	tableName = "documents_store"
	schemaDDL = `
	CREATE TABLE IF NOT EXISTS documents_store
	(
	    collection TEXT NOT NULL,
	    doc_key    TEXT NOT NULL,
	    body       TEXT NOT NULL DEFAULT '{}',

	    PRIMARY KEY (collection, doc_key)
	);
	`
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// row is a documents table record
type row struct {
	DocKey string
	Body   string
}

// DocumentStore implements the documentstore.Store interface on top of SQLite
type DocumentStore struct {
	path    string
	db      *sql.DB
	sb      sq.StatementBuilderType
	dialect sqlfilter.SQLite
	// hold the connection state to avoid multiple connection of the same instance
	connected *atomic.Bool
}

// enforce interface implementation
var _ documentstore.Store = (*DocumentStore)(nil)

// NewDocumentStore creates a document store persisted at the given path.
// Use ":memory:" for a transient database.
func NewDocumentStore(path string) *DocumentStore {
	return &DocumentStore{
		path:      path,
		sb:        sq.StatementBuilder.PlaceholderFormat(sq.Question),
		dialect:   sqlfilter.SQLite{KeyColumn: "doc_key", BodyColumn: "body"},
		connected: atomic.NewBool(false),
	}
}

// Connect opens the database and creates the documents table
func (s *DocumentStore) Connect(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Connect")
	defer span.End()

	if s.connected.Load() {
		return nil
	}

	if strings.TrimSpace(s.path) == "" {
		return fmt.Errorf("storage path is required")
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}

	// a single connection serializes writers and keeps in-memory databases alive
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create the documents table: %w", err)
	}

	s.db = db
	s.connected.Store(true)
	return nil
}

// Disconnect closes the database
func (s *DocumentStore) Disconnect(ctx context.Context) error {
	_, span := telemetry.SpanContext(ctx, "documentStore.Disconnect")
	defer span.End()

	if !s.connected.Load() {
		return nil
	}

	if err := s.db.Close(); err != nil {
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
	return s.db.PingContext(ctx)
}

// Insert adds a new document to the collection
func (s *DocumentStore) Insert(ctx context.Context, collection, key string, document documentstore.Document) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Insert")
	defer span.End()

	if !s.connected.Load() {
		return documentstore.ErrNotConnected
	}

	body, err := json.Marshal(documentstore.Merge(nil, document))
	if err != nil {
		return fmt.Errorf("failed to serialize document=(%s/%s): %w", collection, key, err)
	}

	query, args, err := s.sb.
		Insert(tableName).
		Columns("collection", "doc_key", "body").
		Values(collection, key, string(body)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build the insert sql statement: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
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

	documents, err := s.list(ctx, collection, sq.Eq{"doc_key": key})
	if err != nil {
		return nil, err
	}

	if len(documents) == 0 {
		return nil, fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}
	return documents[0], nil
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

// ConditionalUpdate merges the given fields into every matching document with a single UPDATE statement
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
		Delete(tableName).
		Where(sq.Eq{"collection": collection, "doc_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build the delete sql statement: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete document=(%s/%s): %w", collection, key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
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

	cond, err := sqlfilter.Where(where, s.dialect)
	if err != nil {
		return nil, err
	}

	return s.list(ctx, collection, cond)
}

func (s *DocumentStore) list(ctx context.Context, collection string, cond sq.Sqlizer) ([]documentstore.Document, error) {
	statement := s.sb.
		Select("doc_key", "body").
		From(tableName).
		Where(sq.Eq{"collection": collection}).
		OrderBy("doc_key ASC")

	if cond != nil {
		statement = statement.Where(cond)
	}

	query, args, err := statement.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build the select sql statement: %w", err)
	}

	var rows []*row
	if err := sqlscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch collection=%s: %w", collection, err)
	}

	documents := make([]documentstore.Document, 0, len(rows))
	for _, rec := range rows {
		document := make(documentstore.Document)
		if err := json.Unmarshal([]byte(rec.Body), &document); err != nil {
			return nil, fmt.Errorf("failed to deserialize document=(%s/%s): %w", collection, rec.DocKey, err)
		}
		document[documentstore.KeyField] = rec.DocKey
		documents = append(documents, document)
	}
	return documents, nil
}

// update sets the top-level fields with json_set so that null values are stored as JSON null
func (s *DocumentStore) update(ctx context.Context, collection string, cond sq.Sqlizer, fields documentstore.Document) (int64, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == documentstore.KeyField {
			continue
		}
		if !fieldPattern.MatchString(name) {
			return 0, fmt.Errorf("invalid document field name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	expr := "body"
	args := make([]any, 0, len(names))
	if len(names) > 0 {
		paths := make([]string, 0, len(names))
		for _, name := range names {
			value, err := json.Marshal(fields[name])
			if err != nil {
				return 0, fmt.Errorf("failed to serialize field=%s: %w", name, err)
			}
			paths = append(paths, fmt.Sprintf("'$.%s', json(?)", name))
			args = append(args, string(value))
		}
		expr = fmt.Sprintf("json_set(body, %s)", strings.Join(paths, ", "))
	}

	statement := s.sb.
		Update(tableName).
		Set("body", sq.Expr(expr, args...)).
		Where(sq.Eq{"collection": collection})

	if cond != nil {
		statement = statement.Where(cond)
	}

	query, queryArgs, err := statement.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build the update sql statement: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, queryArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to update collection=%s: %w", collection, err)
	}

	return result.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
