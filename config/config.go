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

// Package config loads the projection settings from the environment
// and builds the stores they describe.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tochemey/goakt/v2/log"

	"github.com/tochemey/projector"
	"github.com/tochemey/projector/documentstore"
	"github.com/tochemey/projector/documentstore/dynamodb"
	docmemory "github.com/tochemey/projector/documentstore/memory"
	docpostgres "github.com/tochemey/projector/documentstore/postgres"
	"github.com/tochemey/projector/documentstore/sqlite"
	"github.com/tochemey/projector/eventstore"
	"github.com/tochemey/projector/eventstore/memory"
	eventspostgres "github.com/tochemey/projector/eventstore/postgres"
	"github.com/tochemey/projector/internal/postgres"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "PROJECTOR_"

// supported backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config holds the projection settings
type Config struct {
	LockTimeout           time.Duration `env:"LOCK_TIMEOUT" envDefault:"1s"`
	PersistBlockSize      int           `env:"PERSIST_BLOCK_SIZE" envDefault:"1000"`
	Sleep                 time.Duration `env:"SLEEP" envDefault:"100ms"`
	CacheSize             int           `env:"CACHE_SIZE" envDefault:"1000"`
	ProjectionsCollection string        `env:"PROJECTIONS_COLLECTION" envDefault:"projections"`
	StreamsCollection     string        `env:"STREAMS_COLLECTION" envDefault:"event_streams"`
	KeepRunning           bool          `env:"KEEP_RUNNING" envDefault:"true"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"error"`

	// DocumentStore is one of memory, postgres, sqlite or dynamodb
	DocumentStore string `env:"DOCUMENT_STORE" envDefault:"memory"`
	// EventsStore is one of memory or postgres
	EventsStore   string          `env:"EVENTS_STORE" envDefault:"memory"`
	SQLitePath    string          `env:"SQLITE_PATH" envDefault:"projector.db"`
	DynamoDBTable string          `env:"DYNAMODB_TABLE" envDefault:"projector"`
	Postgres      postgres.Config `envPrefix:"POSTGRES_"`
}

// Load reads the configuration from the PROJECTOR_ prefixed environment variables
func Load() (*Config, error) {
	cfg := new(Config)
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse the projector configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch c.DocumentStore {
	case BackendMemory, BackendPostgres, BackendSQLite, BackendDynamoDB:
	default:
		return fmt.Errorf("unsupported document store %q", c.DocumentStore)
	}

	switch c.EventsStore {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unsupported events store %q", c.EventsStore)
	}

	if c.LockTimeout <= 0 {
		return fmt.Errorf("invalid lock timeout %s", c.LockTimeout)
	}

	if c.PersistBlockSize <= 0 {
		return fmt.Errorf("invalid persist block size %d", c.PersistBlockSize)
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("invalid cache size %d", c.CacheSize)
	}
	return nil
}

// Logger returns a logger writing to stderr at the configured level
func (c *Config) Logger() log.Logger {
	level := log.ErrorLevel
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = log.DebugLevel
	case "info":
		level = log.InfoLevel
	case "warn", "warning":
		level = log.WarningLevel
	}
	return log.New(level, os.Stderr)
}

// Options returns the projection options matching the configuration
func (c *Config) Options() []projector.Option {
	return []projector.Option{
		projector.WithLogger(c.Logger()),
		projector.WithLockTimeout(c.LockTimeout),
		projector.WithPersistBlockSize(c.PersistBlockSize),
		projector.WithSleep(c.Sleep),
		projector.WithCacheSize(c.CacheSize),
		projector.WithProjectionsCollection(c.ProjectionsCollection),
		projector.WithStreamsCollection(c.StreamsCollection),
	}
}

// NewDocumentStore creates the configured document store. The store still needs to be connected.
func (c *Config) NewDocumentStore(ctx context.Context) (documentstore.Store, error) {
	switch c.DocumentStore {
	case BackendPostgres:
		return docpostgres.NewDocumentStore(&c.Postgres), nil
	case BackendSQLite:
		return sqlite.NewDocumentStore(c.SQLitePath), nil
	case BackendDynamoDB:
		store, err := dynamodb.NewDefaultDocumentStore(ctx, c.DynamoDBTable)
		if err != nil {
			return nil, fmt.Errorf("failed to create the dynamodb document store: %w", err)
		}
		return store, nil
	default:
		return docmemory.NewDocumentStore(), nil
	}
}

// NewEventsStore creates the configured events store registering its streams
// in the given document store. The store still needs to be connected.
func (c *Config) NewEventsStore(documents documentstore.Store) eventstore.EventsStore {
	catalog := eventstore.NewCatalog(documents, c.StreamsCollection)
	if c.EventsStore == BackendPostgres {
		return eventspostgres.NewEventsStore(&c.Postgres, catalog)
	}
	return memory.NewEventsStore(catalog)
}
