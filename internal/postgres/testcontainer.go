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
	"strconv"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/travisjeffery/go-dynaport"
)

// TestContainer helps creates a Postgres docker container to
// run unit tests
type TestContainer struct {
	resource *dockertest.Resource
	pool     *dockertest.Pool

	host   string
	port   int
	schema string
	dbUser string
	dbName string
	dbPass string
}

// NewTestContainer create a Postgres test container useful for unit and integration tests.
// It returns an error when docker is not reachable so that callers can skip their tests.
func NewTestContainer(dbName, dbUser, dbPassword string) (*TestContainer, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("could not construct the docker pool: %w", err)
	}

	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to docker: %w", err)
	}

	port := dynaport.Get(1)[0]
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			fmt.Sprintf("POSTGRES_PASSWORD=%s", dbPassword),
			fmt.Sprintf("POSTGRES_USER=%s", dbUser),
			fmt.Sprintf("POSTGRES_DB=%s", dbName),
			"listen_addresses = '*'",
		},
		ExposedPorts: []string{"5432/tcp"},
		PortBindings: map[docker.Port][]docker.PortBinding{
			"5432/tcp": {{HostIP: "0.0.0.0", HostPort: strconv.Itoa(port)}},
		},
	}, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("could not start the postgres container: %w", err)
	}

	// tell docker to hard kill the container in 120 seconds
	_ = resource.Expire(120)

	container := &TestContainer{
		resource: resource,
		pool:     pool,
		host:     "localhost",
		port:     port,
		schema:   "public",
		dbUser:   dbUser,
		dbName:   dbName,
		dbPass:   dbPassword,
	}

	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	pool.MaxWait = 2 * time.Minute
	if err := pool.Retry(func() error {
		ctx := context.Background()
		db := New(container.config())
		if err := db.Connect(ctx); err != nil {
			return err
		}
		return db.Disconnect(ctx)
	}); err != nil {
		_ = pool.Purge(resource)
		return nil, fmt.Errorf("could not connect to the postgres container: %w", err)
	}

	return container, nil
}

// GetTestDB returns a Postgres TestDB that can be used in the tests
// to perform some database queries
func (c TestContainer) GetTestDB() *TestDB {
	return &TestDB{New(c.config())}
}

// Config returns the connection settings of the container database
func (c TestContainer) Config() *Config {
	return c.config()
}

// Host return the host of the test container
func (c TestContainer) Host() string {
	return c.host
}

// Port return the port of the test container
func (c TestContainer) Port() int {
	return c.port
}

// Schema return the test schema of the test container
func (c TestContainer) Schema() string {
	return c.schema
}

// Cleanup frees the resource by removing a container and linked volumes from docker.
func (c *TestContainer) Cleanup() {
	if c == nil || c.pool == nil {
		return
	}
	_ = c.pool.Purge(c.resource)
}

func (c TestContainer) config() *Config {
	config := NewConfig(c.host, c.port, c.dbUser, c.dbPass, c.dbName)
	config.DBSchema = c.schema
	return config
}

// TestDB is used in test to perform
// some database queries
type TestDB struct {
	Postgres
}

// DropTable utility function to drop a database table
func (c TestDB) DropTable(ctx context.Context, tableName string) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", tableName)
	_, err := c.Exec(ctx, query)
	return err
}

// Count utility function to help count the number of rows in a Postgres table.
// tableName is in the format: <schemaName.tableName>. e.g: public.users
// It returns -1 when there is an error
func (c TestDB) Count(ctx context.Context, tableName string) (int, error) {
	var count int
	if err := c.Select(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)); err != nil {
		return -1, err
	}
	return count, nil
}
