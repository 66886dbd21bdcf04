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
	"fmt"
	"reflect"
	"strings"
)

// Predicate is a filter over documents.
// Backends either evaluate it in memory with Match or translate it into their native query language.
type Predicate interface {
	predicate()
}

// Eq matches documents whose field equals the value
type Eq struct {
	Field string
	Value any
}

// Lt matches documents whose field is strictly lower than the value.
// Strings compare lexicographically and numbers numerically.
type Lt struct {
	Field string
	Value any
}

// IsNull matches documents whose field is missing or null
type IsNull struct {
	Field string
}

// In matches documents whose field equals one of the values
type In struct {
	Field  string
	Values []any
}

// HasPrefix matches documents whose string field starts with the prefix
type HasPrefix struct {
	Field  string
	Prefix string
}

// Not negates a predicate
type Not struct {
	Predicate Predicate
}

// And matches when every predicate matches
type And []Predicate

// Or matches when at least one predicate matches
type Or []Predicate

func (Eq) predicate()        {}
func (Lt) predicate()        {}
func (IsNull) predicate()    {}
func (In) predicate()        {}
func (HasPrefix) predicate() {}
func (Not) predicate()       {}
func (And) predicate()       {}
func (Or) predicate()        {}

// Match evaluates the predicate against a document identified by its key.
// A nil predicate matches everything.
func Match(where Predicate, key string, document Document) (bool, error) {
	if where == nil {
		return true, nil
	}

	switch p := where.(type) {
	case Eq:
		value, ok := lookup(key, document, p.Field)
		if !ok || value == nil {
			return p.Value == nil, nil
		}
		return equal(value, p.Value), nil
	case Lt:
		value, ok := lookup(key, document, p.Field)
		if !ok || value == nil {
			return false, nil
		}
		cmp, err := compare(value, p.Value)
		if err != nil {
			return false, err
		}
		return cmp < 0, nil
	case IsNull:
		value, ok := lookup(key, document, p.Field)
		return !ok || value == nil, nil
	case In:
		value, ok := lookup(key, document, p.Field)
		if !ok || value == nil {
			return false, nil
		}
		for _, candidate := range p.Values {
			if equal(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	case HasPrefix:
		value, ok := lookup(key, document, p.Field)
		if !ok {
			return false, nil
		}
		str, ok := value.(string)
		return ok && strings.HasPrefix(str, p.Prefix), nil
	case Not:
		matched, err := Match(p.Predicate, key, document)
		if err != nil {
			return false, err
		}
		return !matched, nil
	case And:
		for _, inner := range p {
			matched, err := Match(inner, key, document)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, inner := range p {
			matched, err := Match(inner, key, document)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported predicate %T", where)
	}
}

// KeyOf returns the key an Eq predicate on KeyField pins, looking through top-level And.
// Backends that can only update by primary key use it to route a conditional update.
func KeyOf(where Predicate) (string, bool) {
	switch p := where.(type) {
	case Eq:
		if p.Field == KeyField {
			key, ok := p.Value.(string)
			return key, ok
		}
	case And:
		for _, inner := range p {
			if key, ok := KeyOf(inner); ok {
				return key, true
			}
		}
	}
	return "", false
}

func lookup(key string, document Document, field string) (any, bool) {
	if field == KeyField {
		return key, true
	}
	value, ok := document[field]
	return value, ok
}

func equal(left, right any) bool {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		return lf == rf
	}
	return reflect.DeepEqual(left, right)
}

func compare(left, right any) (int, error) {
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", right)
		}
		return strings.Compare(ls, rs), nil
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return 0, fmt.Errorf("cannot compare %T with %T", left, right)
	}

	switch {
	case lf < rf:
		return -1, nil
	case lf > rf:
		return 1, nil
	default:
		return 0, nil
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
