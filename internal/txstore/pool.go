// Package txstore provides the PostgreSQL storage layer for the transaction service.
//
// It manages connection pooling via pgxpool, the saga transaction boundary
// (a pgx transaction held open across the audit acknowledgement wait), and
// query methods for users and transactions.
package txstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxConns bounds the pool. Each in-flight saga holds one connection
// for the duration of the audit ack wait, so this also bounds saga concurrency.
const DefaultMaxConns = 20

// DB wraps a pgxpool.Pool for the transaction-service schema.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new DB with a connection pool.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("txstore: parse DSN: %w", err)
	}
	if poolCfg.MaxConns < DefaultMaxConns {
		poolCfg.MaxConns = DefaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("txstore: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("txstore: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
