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
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tochemey/projector/documentstore"
)

// toAttribute converts a JSON friendly value into a DynamoDB attribute
func toAttribute(value any) (types.AttributeValue, error) {
	switch v := value.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: v}, nil
	case string:
		return &types.AttributeValueMemberS{Value: v}, nil
	case int:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
	case int32:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}, nil
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}, nil
	case uint:
		return &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
	case uint32:
		return &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}, nil
	case uint64:
		return &types.AttributeValueMemberN{Value: strconv.FormatUint(v, 10)}, nil
	case float32:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(float64(v), 'f', -1, 32)}, nil
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}, nil
	case []any:
		list := make([]types.AttributeValue, 0, len(v))
		for _, item := range v {
			attribute, err := toAttribute(item)
			if err != nil {
				return nil, err
			}
			list = append(list, attribute)
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case documentstore.Document:
		return toAttribute(map[string]any(v))
	case map[string]any:
		members := make(map[string]types.AttributeValue, len(v))
		for key, item := range v {
			attribute, err := toAttribute(item)
			if err != nil {
				return nil, err
			}
			members[key] = attribute
		}
		return &types.AttributeValueMemberM{Value: members}, nil
	case map[string]uint64:
		members := make(map[string]types.AttributeValue, len(v))
		for key, item := range v {
			members[key] = &types.AttributeValueMemberN{Value: strconv.FormatUint(item, 10)}
		}
		return &types.AttributeValueMemberM{Value: members}, nil
	default:
		return nil, fmt.Errorf("unsupported document value %T", value)
	}
}

// fromAttribute converts a DynamoDB attribute back into a JSON friendly value.
// Numbers come back as float64, as they would from a JSON document.
func fromAttribute(attribute types.AttributeValue) (any, error) {
	switch v := attribute.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		number, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number attribute %q: %w", v.Value, err)
		}
		return number, nil
	case *types.AttributeValueMemberL:
		list := make([]any, 0, len(v.Value))
		for _, item := range v.Value {
			value, err := fromAttribute(item)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		return list, nil
	case *types.AttributeValueMemberM:
		members := make(map[string]any, len(v.Value))
		for key, item := range v.Value {
			value, err := fromAttribute(item)
			if err != nil {
				return nil, err
			}
			members[key] = value
		}
		return members, nil
	default:
		return nil, fmt.Errorf("unsupported attribute %T", attribute)
	}
}

// toDocument builds a document out of a table item
func toDocument(item map[string]types.AttributeValue) (documentstore.Document, error) {
	key, ok := item[keyAttribute].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("item without %s attribute", keyAttribute)
	}

	document := make(documentstore.Document)
	if body, ok := item[bodyAttribute]; ok {
		value, err := fromAttribute(body)
		if err != nil {
			return nil, err
		}
		if members, ok := value.(map[string]any); ok {
			for k, v := range members {
				document[k] = v
			}
		}
	}

	document[documentstore.KeyField] = key.Value
	return document, nil
}

// sortedFields returns the field names to write, skipping the key field
func sortedFields(fields documentstore.Document) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name != documentstore.KeyField {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
