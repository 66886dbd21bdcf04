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

	"github.com/tochemey/projector/internal/postgres"
)

// SchemaUtils help create the various test tables in unit/integration tests
type SchemaUtils struct {
	db postgres.Postgres
}

// NewSchemaUtils creates an instance of SchemaUtils
func NewSchemaUtils(db postgres.Postgres) *SchemaUtils {
	return &SchemaUtils{db: db}
}

// CreateTable creates the event store tables used for unit tests
func (d SchemaUtils) CreateTable(ctx context.Context) error {
	schemaDDL := `
	CREATE TABLE IF NOT EXISTS event_streams_store
	(
	    stream_name VARCHAR(255) NOT NULL,
	    last_number BIGINT       NOT NULL DEFAULT 0,

	    PRIMARY KEY (stream_name)
	);

	CREATE TABLE IF NOT EXISTS events_store
	(
	    stream_name  VARCHAR(255) NOT NULL,
	    event_number BIGINT       NOT NULL,
	    event_id     VARCHAR(64)  NOT NULL,
	    event_name   VARCHAR(255) NOT NULL,
	    payload      BYTEA        NOT NULL,
	    metadata     JSONB        NOT NULL DEFAULT '{}'::jsonb,
	    timestamp    BIGINT       NOT NULL,

	    PRIMARY KEY (stream_name, event_number)
	);
	`
	_, err := d.db.Exec(ctx, schemaDDL)
	return err
}

// DropTable drop the table used in unit test
// This is useful for resource cleanup after a unit test
func (d SchemaUtils) DropTable(ctx context.Context) error {
	if _, err := d.db.Exec(ctx, "DROP TABLE IF EXISTS events_store CASCADE;"); err != nil {
		return err
	}
	_, err := d.db.Exec(ctx, "DROP TABLE IF EXISTS event_streams_store CASCADE;")
	return err
}
