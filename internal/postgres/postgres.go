/*
 * MIT License
 *
 * Copyright (c) 2022-2024 Tochemey
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
	"errors"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the connection pool shared by the Postgres backed stores
type Postgres interface {
	// Connect opens the connection pool and checks the database is reachable
	Connect(ctx context.Context) error
	// Disconnect closes the connection pool
	Disconnect(ctx context.Context) error
	// Ping checks the database is reachable
	Ping(ctx context.Context) error
	// Select scans a single row into dst. A missing row is not an error and leaves dst untouched.
	Select(ctx context.Context, dst any, query string, args ...any) error
	// SelectAll scans every row of the query into dst.
	SelectAll(ctx context.Context, dst any, query string, args ...any) error
	// Exec runs a statement that does not return rows
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	// WithinTx runs fn in a read committed transaction.
	// The transaction is committed when fn returns nil and rolled back otherwise.
	WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// ErrNotConnected is returned when the database is used before Connect
var ErrNotConnected = errors.New("postgres database is not connected")

type postgres struct {
	config *Config
	pool   *pgxpool.Pool
}

var _ Postgres = (*postgres)(nil)

// New returns a connection pool for the given settings. Call Connect before use.
func New(config *Config) Postgres {
	return &postgres{config: config}
}

// Connect opens the pool
func (pg *postgres) Connect(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(pg.config.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(pg.config.MaxConnections)
	poolConfig.MinConns = int32(pg.config.MinConnections)
	poolConfig.MaxConnLifetime = pg.config.MaxConnectionLifetime
	poolConfig.MaxConnIdleTime = pg.config.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = pg.config.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create the connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping the database: %w", err)
	}

	pg.pool = pool
	return nil
}

// Ping checks the database connection
func (pg *postgres) Ping(ctx context.Context) error {
	if pg.pool == nil {
		return ErrNotConnected
	}
	return pg.pool.Ping(ctx)
}

// Exec executes a statement against the pool
func (pg *postgres) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if pg.pool == nil {
		return pgconn.CommandTag{}, ErrNotConnected
	}
	return pg.pool.Exec(ctx, query, args...)
}

// WithinTx runs fn inside a transaction
func (pg *postgres) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if pg.pool == nil {
		return ErrNotConnected
	}

	tx, err := pg.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to obtain a database transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		// the rollback error is irrelevant once fn failed
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit the database transaction: %w", err)
	}
	return nil
}

// SelectAll fetches rows
func (pg *postgres) SelectAll(ctx context.Context, dst any, query string, args ...any) error {
	if pg.pool == nil {
		return ErrNotConnected
	}
	if err := pgxscan.Select(ctx, pg.pool, dst, query, args...); err != nil && !pgxscan.NotFound(err) {
		return err
	}
	return nil
}

// Select fetches only one row
func (pg *postgres) Select(ctx context.Context, dst any, query string, args ...any) error {
	if pg.pool == nil {
		return ErrNotConnected
	}
	if err := pgxscan.Get(ctx, pg.pool, dst, query, args...); err != nil && !pgxscan.NotFound(err) {
		return err
	}
	return nil
}

// Disconnect closes the pool
func (pg *postgres) Disconnect(context.Context) error {
	if pg.pool == nil {
		return nil
	}
	pg.pool.Close()
	pg.pool = nil
	return nil
}

// ConnectionString builds the keyword/value connection string of the settings
func (c *Config) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	parts := []string{
		fmt.Sprintf("host=%s", c.DBHost),
		fmt.Sprintf("port=%d", c.DBPort),
		fmt.Sprintf("user=%s", c.DBUser),
		fmt.Sprintf("dbname=%s", c.DBName),
		fmt.Sprintf("sslmode=%s", sslMode),
	}

	// an empty password makes the driver attempt password authentication
	if c.DBPassword != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.DBPassword))
	}

	if c.DBSchema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", c.DBSchema))
	}

	return strings.Join(parts, " ")
}
