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

// Package dynamodb provides a documentstore.Store backed by a DynamoDB table.
// The table is keyed by the Collection partition key and the DocKey sort key,
// and each document lives in a Body map attribute.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/internal/telemetry"
)

const defaultTableName = "documents_store"

// Client is the subset of the DynamoDB API the store needs
type Client interface {
	dynamodb.QueryAPIClient
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DocumentStore implements the documentstore.Store interface
// and helps persist documents in a DynamoDB table
type DocumentStore struct {
	client    Client
	tableName string
}

// enforce interface implementation
var _ documentstore.Store = (*DocumentStore)(nil)

// NewDocumentStore creates a document store using the given client and table.
// An empty table name falls back to documents_store.
func NewDocumentStore(client Client, tableName string) *DocumentStore {
	if tableName == "" {
		tableName = defaultTableName
	}
	return &DocumentStore{
		client:    client,
		tableName: tableName,
	}
}

// NewDefaultDocumentStore creates a document store using the default AWS configuration chain
func NewDefaultDocumentStore(ctx context.Context, tableName string) (*DocumentStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load the aws configuration: %w", err)
	}
	return NewDocumentStore(dynamodb.NewFromConfig(cfg), tableName), nil
}

// Connect connects to the document store
// No connection is needed because the client is stateless
func (s *DocumentStore) Connect(context.Context) error {
	return nil
}

// Disconnect disconnect the document store
// There is no need to disconnect because the client is stateless
func (s *DocumentStore) Disconnect(context.Context) error {
	return nil
}

// Ping verifies the table is reachable
func (s *DocumentStore) Ping(ctx context.Context) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Ping")
	defer span.End()

	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)}); err != nil {
		return fmt.Errorf("failed to describe table=%s: %w", s.tableName, err)
	}
	return nil
}

// Insert adds a new document to the collection
func (s *DocumentStore) Insert(ctx context.Context, collection, key string, document documentstore.Document) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Insert")
	defer span.End()

	body, err := toAttribute(documentstore.Merge(nil, document))
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			collectionAttribute: &types.AttributeValueMemberS{Value: collection},
			keyAttribute:        &types.AttributeValueMemberS{Value: key},
			bodyAttribute:       body,
		},
		ConditionExpression:      aws.String(fmt.Sprintf("attribute_not_exists(%s)", keyName)),
		ExpressionAttributeNames: map[string]string{keyName: keyAttribute},
	})
	if err != nil {
		if isConditionFailed(err) {
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

	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(collection, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document=(%s/%s): %w", collection, key, err)
	}

	if resp.Item == nil {
		return nil, fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}

	return toDocument(resp.Item)
}

// Update merges the given fields into the document
func (s *DocumentStore) Update(ctx context.Context, collection, key string, fields documentstore.Document) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Update")
	defer span.End()

	updated, err := s.updateItem(ctx, collection, key, nil, fields)
	if err != nil {
		return err
	}

	if !updated {
		return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
	}
	return nil
}

// ConditionalUpdate merges the given fields into every matching document.
// Each document is updated with a conditional write re-checking the predicate.
func (s *DocumentStore) ConditionalUpdate(ctx context.Context, collection string, where documentstore.Predicate, fields documentstore.Document) (int64, error) {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.ConditionalUpdate")
	defer span.End()

	var keys []string
	if key, ok := documentstore.KeyOf(where); ok {
		keys = []string{key}
	} else {
		documents, err := s.query(ctx, collection, where)
		if err != nil {
			return 0, err
		}
		for _, document := range documents {
			keys = append(keys, document[documentstore.KeyField].(string))
		}
	}

	var count int64
	for _, key := range keys {
		updated, err := s.updateItem(ctx, collection, key, where, fields)
		if err != nil {
			return count, err
		}
		if updated {
			count++
		}
	}
	return count, nil
}

// Delete removes the document with the given key
func (s *DocumentStore) Delete(ctx context.Context, collection, key string) error {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.Delete")
	defer span.End()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      itemKey(collection, key),
		ConditionExpression:      aws.String(fmt.Sprintf("attribute_exists(%s)", keyName)),
		ExpressionAttributeNames: map[string]string{keyName: keyAttribute},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("document=(%s/%s): %w", collection, key, documentstore.ErrNotFound)
		}
		return fmt.Errorf("failed to delete document=(%s/%s): %w", collection, key, err)
	}
	return nil
}

// ListWhere returns the matching documents ordered by key
func (s *DocumentStore) ListWhere(ctx context.Context, collection string, where documentstore.Predicate) ([]documentstore.Document, error) {
	ctx, span := telemetry.SpanContext(ctx, "documentStore.ListWhere")
	defer span.End()

	return s.query(ctx, collection, where)
}

// query reads the whole collection partition in sort key order and filters it in memory
func (s *DocumentStore) query(ctx context.Context, collection string, where documentstore.Predicate) ([]documentstore.Document, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    aws.String("#collection = :collection"),
		ExpressionAttributeNames:  map[string]string{"#collection": collectionAttribute},
		ExpressionAttributeValues: map[string]types.AttributeValue{":collection": &types.AttributeValueMemberS{Value: collection}},
		ConsistentRead:            aws.Bool(true),
	})

	var documents []documentstore.Document
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch collection=%s: %w", collection, err)
		}

		for _, item := range page.Items {
			document, err := toDocument(item)
			if err != nil {
				return nil, err
			}

			matched, err := documentstore.Match(where, document[documentstore.KeyField].(string), document)
			if err != nil {
				return nil, err
			}

			if matched {
				documents = append(documents, document)
			}
		}
	}
	return documents, nil
}

// updateItem sets the body fields of one document when it exists and matches the predicate
func (s *DocumentStore) updateItem(ctx context.Context, collection, key string, where documentstore.Predicate, fields documentstore.Document) (bool, error) {
	expr := newExpression()

	condition := fmt.Sprintf("attribute_exists(%s)", keyName)
	if where != nil {
		extra, err := expr.condition(where)
		if err != nil {
			return false, err
		}
		condition = fmt.Sprintf("%s AND %s", condition, extra)
	}

	names := sortedFields(fields)
	if len(names) == 0 {
		// nothing to write, only check the document matches
		documents, err := s.query(ctx, collection, documentstore.And{documentstore.Eq{Field: documentstore.KeyField, Value: key}, where})
		if err != nil {
			return false, err
		}
		return len(documents) == 1, nil
	}

	update, err := expr.set(fields, names)
	if err != nil {
		return false, err
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      itemKey(collection, key),
		UpdateExpression:         aws.String(update),
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: expr.names,
	}
	if len(expr.values) > 0 {
		input.ExpressionAttributeValues = expr.values
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update document=(%s/%s): %w", collection, key, err)
	}
	return true, nil
}

func itemKey(collection, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		collectionAttribute: &types.AttributeValueMemberS{Value: collection},
		keyAttribute:        &types.AttributeValueMemberS{Value: key},
	}
}

func isConditionFailed(err error) bool {
	var conditionFailed *types.ConditionalCheckFailedException
	return errors.As(err, &conditionFailed)
}
