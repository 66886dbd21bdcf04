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

package sqlfilter

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/projector/documentstore"
)

func TestWhere(t *testing.T) {
	postgres := Postgres{KeyColumn: "doc_key", BodyColumn: "body"}
	sqlite := SQLite{KeyColumn: "doc_key", BodyColumn: "body"}

	t.Run("with nil predicate", func(t *testing.T) {
		cond, err := Where(nil, postgres)
		require.NoError(t, err)
		assert.Nil(t, cond)
	})
	t.Run("with lock predicate on postgres", func(t *testing.T) {
		where := documentstore.And{
			documentstore.Eq{Field: documentstore.KeyField, Value: "users"},
			documentstore.Or{
				documentstore.IsNull{Field: "lockedUntil"},
				documentstore.Lt{Field: "lockedUntil", Value: "2024-01-01T10:00:00.000000"},
			},
		}
		cond, err := Where(where, postgres)
		require.NoError(t, err)

		query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
			Update("documents").
			Set("body", "{}").
			Where(cond).
			ToSql()
		require.NoError(t, err)
		assert.Equal(t,
			`UPDATE documents SET body = $1 WHERE (doc_key = $2 AND (COALESCE(jsonb_typeof(body->'lockedUntil'), 'null') = 'null' OR (body->>'lockedUntil') COLLATE "C" < $3))`,
			query)
		assert.Equal(t, []any{"{}", "users", "2024-01-01T10:00:00.000000"}, args)
	})
	t.Run("with eq on postgres", func(t *testing.T) {
		cond, err := Where(documentstore.Eq{Field: "count", Value: 3}, postgres)
		require.NoError(t, err)
		query, args, err := cond.ToSql()
		require.NoError(t, err)
		assert.Equal(t, "body->'count' = ?::jsonb", query)
		assert.Equal(t, []any{"3"}, args)
	})
	t.Run("with in on sqlite", func(t *testing.T) {
		cond, err := Where(documentstore.In{Field: "category", Values: []any{"user", "order"}}, sqlite)
		require.NoError(t, err)
		query, args, err := cond.ToSql()
		require.NoError(t, err)
		assert.Equal(t, "(json_extract(body, '$.category') = ? OR json_extract(body, '$.category') = ?)", query)
		assert.Equal(t, []any{"user", "order"}, args)
	})
	t.Run("with not has prefix on sqlite", func(t *testing.T) {
		cond, err := Where(documentstore.Not{Predicate: documentstore.HasPrefix{Field: "realStreamName", Prefix: "$"}}, sqlite)
		require.NoError(t, err)
		query, args, err := cond.ToSql()
		require.NoError(t, err)
		assert.Equal(t, "NOT COALESCE((substr(json_extract(body, '$.realStreamName'), 1, ?) = ?), FALSE)", query)
		assert.Equal(t, []any{1, "$"}, args)
	})
	t.Run("with not eq on postgres", func(t *testing.T) {
		cond, err := Where(documentstore.Not{Predicate: documentstore.Eq{Field: "status", Value: "idle"}}, postgres)
		require.NoError(t, err)
		query, args, err := cond.ToSql()
		require.NoError(t, err)
		assert.Equal(t, "NOT COALESCE((body->'status' = ?::jsonb), FALSE)", query)
		assert.Equal(t, []any{`"idle"`}, args)
	})
	t.Run("with invalid field name", func(t *testing.T) {
		_, err := Where(documentstore.Eq{Field: "status'; DROP TABLE", Value: "x"}, sqlite)
		require.Error(t, err)
	})
	t.Run("with unsupported comparison", func(t *testing.T) {
		_, err := Where(documentstore.Lt{Field: "state", Value: map[string]any{}}, postgres)
		require.Error(t, err)
	})
}
