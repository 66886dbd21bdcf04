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
	"fmt"

	"github.com/lib/pq"

	"github.com/tochemey/projector/internal/postgres"
)

const defaultTableName = "documents_store"

// SchemaUtils help create the documents table
type SchemaUtils struct {
	db        postgres.Postgres
	tableName string
}

// NewSchemaUtils creates an instance of SchemaUtils
func NewSchemaUtils(db postgres.Postgres, tableName string) *SchemaUtils {
	return &SchemaUtils{db: db, tableName: tableName}
}

// CreateTable creates the documents table when it does not exist
func (d SchemaUtils) CreateTable(ctx context.Context) error {
	table := pq.QuoteIdentifier(d.tableName)
	schemaDDL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s
	(
	    collection VARCHAR(255) NOT NULL,
	    doc_key    VARCHAR(255) NOT NULL,
	    body       JSONB        NOT NULL DEFAULT '{}'::jsonb,

	    PRIMARY KEY (collection, doc_key)
	);
	`, table)
	_, err := d.db.Exec(ctx, schemaDDL)
	return err
}

// DropTable drop the table used in unit test
// This is useful for resource cleanup after a unit test
func (d SchemaUtils) DropTable(ctx context.Context) error {
	_, err := d.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", pq.QuoteIdentifier(d.tableName)))
	return err
}
