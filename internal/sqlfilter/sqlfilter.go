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

// Package sqlfilter turns document predicates into SQL conditions
// for stores keeping documents as a JSON body next to a key column.
package sqlfilter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"

	"github.com/tochemey/projector/documentstore"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Dialect renders the leaf conditions of a predicate
type Dialect interface {
	// Key returns the key column
	Key() string
	// Text returns the expression extracting a field as a scalar
	Text(field string) string
	// Equal returns the condition matching a field equal to a non-nil value
	Equal(field string, value any) (sq.Sqlizer, error)
	// Less returns the condition matching a field strictly lower than the value
	Less(field string, value any) (sq.Sqlizer, error)
	// Null returns the condition matching a missing or null field
	Null(field string) sq.Sqlizer
}

// Where translates the predicate into a condition for the given dialect.
// A nil predicate yields a nil condition.
func Where(where documentstore.Predicate, dialect Dialect) (sq.Sqlizer, error) {
	if where == nil {
		return nil, nil
	}

	switch p := where.(type) {
	case documentstore.Eq:
		if p.Field == documentstore.KeyField {
			return sq.Eq{dialect.Key(): p.Value}, nil
		}
		if err := validate(p.Field); err != nil {
			return nil, err
		}
		if p.Value == nil {
			return dialect.Null(p.Field), nil
		}
		return dialect.Equal(p.Field, p.Value)
	case documentstore.Lt:
		if p.Field == documentstore.KeyField {
			return sq.Lt{dialect.Key(): p.Value}, nil
		}
		if err := validate(p.Field); err != nil {
			return nil, err
		}
		return dialect.Less(p.Field, p.Value)
	case documentstore.IsNull:
		if p.Field == documentstore.KeyField {
			return sq.Expr("1 = 0"), nil
		}
		if err := validate(p.Field); err != nil {
			return nil, err
		}
		return dialect.Null(p.Field), nil
	case documentstore.In:
		or := make(documentstore.Or, 0, len(p.Values))
		for _, value := range p.Values {
			or = append(or, documentstore.Eq{Field: p.Field, Value: value})
		}
		return Where(or, dialect)
	case documentstore.HasPrefix:
		column := dialect.Key()
		if p.Field != documentstore.KeyField {
			if err := validate(p.Field); err != nil {
				return nil, err
			}
			column = dialect.Text(p.Field)
		}
		return sq.Expr(fmt.Sprintf("substr(%s, 1, ?) = ?", column), utf8.RuneCountInString(p.Prefix), p.Prefix), nil
	case documentstore.Not:
		inner, err := Where(p.Predicate, dialect)
		if err != nil {
			return nil, err
		}
		query, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		// a NULL inner condition (missing field) counts as not matched
		return sq.Expr(fmt.Sprintf("NOT COALESCE((%s), FALSE)", query), args...), nil
	case documentstore.And:
		and := make(sq.And, 0, len(p))
		for _, predicate := range p {
			cond, err := Where(predicate, dialect)
			if err != nil {
				return nil, err
			}
			and = append(and, cond)
		}
		return and, nil
	case documentstore.Or:
		or := make(sq.Or, 0, len(p))
		for _, predicate := range p {
			cond, err := Where(predicate, dialect)
			if err != nil {
				return nil, err
			}
			or = append(or, cond)
		}
		return or, nil
	default:
		return nil, fmt.Errorf("unsupported predicate %T", where)
	}
}

func validate(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("invalid document field name %q", field)
	}
	return nil
}

// Postgres renders conditions over a JSONB body column
type Postgres struct {
	KeyColumn  string
	BodyColumn string
}

var _ Dialect = Postgres{}

// Key returns the key column
func (d Postgres) Key() string {
	return d.KeyColumn
}

// Text returns the field as text
func (d Postgres) Text(field string) string {
	return fmt.Sprintf("%s->>'%s'", d.BodyColumn, field)
}

// Equal compares the field as JSONB so that numbers and strings keep their type
func (d Postgres) Equal(field string, value any) (sq.Sqlizer, error) {
	bytea, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("invalid value for field=%s: %w", field, err)
	}
	return sq.Expr(fmt.Sprintf("%s->'%s' = ?::jsonb", d.BodyColumn, field), string(bytea)), nil
}

// Less compares strings byte-wise and numbers numerically
func (d Postgres) Less(field string, value any) (sq.Sqlizer, error) {
	switch value.(type) {
	case string:
		return sq.Expr(fmt.Sprintf(`(%s) COLLATE "C" < ?`, d.Text(field)), value), nil
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return sq.Expr(
			fmt.Sprintf("CASE WHEN jsonb_typeof(%s->'%s') = 'number' THEN (%s)::numeric < ? ELSE false END", d.BodyColumn, field, d.Text(field)),
			value,
		), nil
	default:
		return nil, fmt.Errorf("cannot compare field=%s with %T", field, value)
	}
}

// Null matches missing fields and JSON nulls
func (d Postgres) Null(field string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("COALESCE(jsonb_typeof(%s->'%s'), 'null') = 'null'", d.BodyColumn, field))
}

// SQLite renders conditions over a JSON text body column using the JSON1 functions
type SQLite struct {
	KeyColumn  string
	BodyColumn string
}

var _ Dialect = SQLite{}

// Key returns the key column
func (d SQLite) Key() string {
	return d.KeyColumn
}

// Text returns the extracted field
func (d SQLite) Text(field string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", d.BodyColumn, field)
}

// Equal compares scalar values
func (d SQLite) Equal(field string, value any) (sq.Sqlizer, error) {
	switch value.(type) {
	case map[string]any, []any, documentstore.Document:
		return nil, fmt.Errorf("cannot compare field=%s with %T", field, value)
	}
	return sq.Expr(fmt.Sprintf("%s = ?", d.Text(field)), value), nil
}

// Less compares scalar values
func (d SQLite) Less(field string, value any) (sq.Sqlizer, error) {
	switch value.(type) {
	case string, int, int32, int64, uint, uint32, uint64, float32, float64:
		return sq.Expr(fmt.Sprintf("%s < ?", d.Text(field)), value), nil
	default:
		return nil, fmt.Errorf("cannot compare field=%s with %T", field, value)
	}
}

// Null matches missing fields and JSON nulls
func (d SQLite) Null(field string) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("%s IS NULL", d.Text(field)))
}
