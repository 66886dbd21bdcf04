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
	"github.com/hashicorp/go-memdb"
)

// record represents a document row.
// The body is kept serialized so that callers never share memory with the store.
type record struct {
	// Collection is the collection name
	Collection string
	// Key is the document key, unique within the collection
	Key string
	// Body is the JSON encoded document
	Body []byte
}

const (
	documentsTableName = "documents"
	documentsPK        = "id"
	collectionIndex    = "collection"
)

var (
	// documentsSchema defines the documents schema
	documentsSchema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			documentsTableName: {
				Name: documentsTableName,
				Indexes: map[string]*memdb.IndexSchema{
					documentsPK: {
						Name:         documentsPK,
						AllowMissing: false,
						Unique:       true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{
									Field:     "Collection",
									Lowercase: false,
								},
								&memdb.StringFieldIndex{
									Field:     "Key",
									Lowercase: false,
								},
							},
							AllowMissing: false,
						},
					},
					collectionIndex: {
						Name:         collectionIndex,
						AllowMissing: false,
						Unique:       false,
						Indexer: &memdb.StringFieldIndex{
							Field:     "Collection",
							Lowercase: false,
						},
					},
				},
			},
		},
	}
)
