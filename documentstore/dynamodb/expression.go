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

package dynamodb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tochemey/projector/documentstore"
)

const (
	bodyAttribute       = "Body"
	collectionAttribute = "Collection"
	keyAttribute        = "DocKey"

	bodyName = "#body"
	keyName  = "#key"
)

// expression accumulates a condition expression with its placeholders
type expression struct {
	names  map[string]string
	values map[string]types.AttributeValue
	fields map[string]string
}

func newExpression() *expression {
	return &expression{
		names:  map[string]string{bodyName: bodyAttribute, keyName: keyAttribute},
		values: make(map[string]types.AttributeValue),
		fields: make(map[string]string),
	}
}

// path returns the placeholder path of a document field
func (e *expression) path(field string) string {
	if field == documentstore.KeyField {
		return keyName
	}
	name, ok := e.fields[field]
	if !ok {
		name = "#f" + strconv.Itoa(len(e.fields))
		e.fields[field] = name
		e.names[name] = field
	}
	return bodyName + "." + name
}

// value registers a value placeholder
func (e *expression) value(value any) (string, error) {
	attribute, err := toAttribute(value)
	if err != nil {
		return "", err
	}
	return e.attribute(attribute), nil
}

func (e *expression) attribute(attribute types.AttributeValue) string {
	name := ":v" + strconv.Itoa(len(e.values))
	e.values[name] = attribute
	return name
}

// condition renders the predicate as a DynamoDB condition expression
func (e *expression) condition(where documentstore.Predicate) (string, error) {
	switch p := where.(type) {
	case nil:
		return fmt.Sprintf("attribute_exists(%s)", keyName), nil
	case documentstore.Eq:
		if p.Value == nil {
			return e.condition(documentstore.IsNull{Field: p.Field})
		}
		return e.compare(p.Field, "=", p.Value)
	case documentstore.Lt:
		switch p.Value.(type) {
		case string, int, int32, int64, uint, uint32, uint64, float32, float64:
			return e.compare(p.Field, "<", p.Value)
		default:
			return "", fmt.Errorf("cannot compare field=%s with %T", p.Field, p.Value)
		}
	case documentstore.IsNull:
		if p.Field == documentstore.KeyField {
			return fmt.Sprintf("attribute_not_exists(%s)", keyName), nil
		}
		path := e.path(p.Field)
		nullType := e.attribute(&types.AttributeValueMemberS{Value: "NULL"})
		return fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, %s))", path, path, nullType), nil
	case documentstore.In:
		if len(p.Values) == 0 {
			return fmt.Sprintf("attribute_not_exists(%s)", keyName), nil
		}
		path := e.path(p.Field)
		placeholders := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			placeholder, err := e.value(v)
			if err != nil {
				return "", err
			}
			placeholders = append(placeholders, placeholder)
		}
		return fmt.Sprintf("%s IN (%s)", path, strings.Join(placeholders, ", ")), nil
	case documentstore.HasPrefix:
		path := e.path(p.Field)
		placeholder, err := e.value(p.Prefix)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", path, placeholder), nil
	case documentstore.Not:
		inner, err := e.condition(p.Predicate)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(NOT %s)", inner), nil
	case documentstore.And:
		return e.join(p, " AND ", fmt.Sprintf("attribute_exists(%s)", keyName))
	case documentstore.Or:
		return e.join(p, " OR ", fmt.Sprintf("attribute_not_exists(%s)", keyName))
	default:
		return "", fmt.Errorf("unsupported predicate %T", where)
	}
}

func (e *expression) compare(field, operator string, value any) (string, error) {
	path := e.path(field)
	placeholder, err := e.value(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", path, operator, placeholder), nil
}

func (e *expression) join(predicates []documentstore.Predicate, separator, empty string) (string, error) {
	if len(predicates) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(predicates))
	for _, predicate := range predicates {
		part, err := e.condition(predicate)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, separator) + ")", nil
}

// set renders an update expression setting the given body fields
func (e *expression) set(fields documentstore.Document, names []string) (string, error) {
	assignments := make([]string, 0, len(names))
	for _, name := range names {
		placeholder, err := e.value(fields[name])
		if err != nil {
			return "", err
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s", e.path(name), placeholder))
	}
	return "SET " + strings.Join(assignments, ", "), nil
}
