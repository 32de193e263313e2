package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the shared connection pool every repository draws from. The
// pipeline runs steps sequentially, so the pool's default sizing is
// plenty.
type DB struct {
	*pgxpool.Pool
}

// NewConnection opens a pool against the configured database and
// verifies it is reachable before any pipeline step starts.
func NewConnection(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases the pool and its connections
func (db *DB) Close() {
	db.Pool.Close()
}
