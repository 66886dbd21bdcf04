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

package projector

import (
	"context"
	"fmt"

	goset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/eventstore"
)

type queryKind int

const (
	queryNone queryKind = iota
	queryStreams
	queryCategories
	queryAll
)

// query defines the streams a projection reads from
type query struct {
	kind  queryKind
	names []string
}

func newQuery(kind queryKind, names ...string) (query, error) {
	if kind != queryAll && len(names) == 0 {
		return query{}, ErrNoQuery
	}

	unique := goset.NewThreadUnsafeSet[string]()
	deduped := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			return query{}, fmt.Errorf("empty name in projection query: %w", ErrNoQuery)
		}
		if unique.Add(name) {
			deduped = append(deduped, name)
		}
	}

	return query{kind: kind, names: deduped}, nil
}

// resolve returns the names of the streams matching the query.
// Category and all-streams queries are resolved against the streams catalog.
func (q query) resolve(ctx context.Context, documents documentstore.Store, streamsCollection string) ([]string, error) {
	var where documentstore.Predicate
	switch q.kind {
	case queryStreams:
		return q.names, nil
	case queryCategories:
		categories := make([]any, len(q.names))
		for i, name := range q.names {
			categories[i] = name
		}
		where = documentstore.In{Field: eventstore.FieldCategory, Values: categories}
	case queryAll:
		where = documentstore.Not{
			Predicate: documentstore.HasPrefix{Field: eventstore.FieldRealStreamName, Prefix: eventstore.SystemStreamPrefix},
		}
	default:
		return nil, ErrNoQuery
	}

	records, err := documents.ListWhere(ctx, streamsCollection, where)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch the streams catalog: %w", err)
	}

	names := make([]string, 0, len(records))
	for _, record := range records {
		if name, ok := record[eventstore.FieldRealStreamName].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
