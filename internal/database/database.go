// Package database owns the shared PostgreSQL connection pool.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool shared by the repositories and the lifecycle store.
type DB struct {
	pool *pgxpool.Pool
}

// Option adjusts the pool configuration before it is opened.
type Option func(*pgxpool.Config)

// WithMaxConns caps the number of pooled connections.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// New creates a new DB by parsing the given database URL and establishing a connection pool.
func New(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	for _, opt := range opts {
		opt(poolCfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Status is a point-in-time view of database connectivity.
type Status struct {
	Connected  bool
	Latency    time.Duration
	TotalConns int32
	IdleConns  int32
}

// Check pings the database and reports pool usage.
func (db *DB) Check(ctx context.Context) Status {
	start := time.Now()
	err := db.pool.Ping(ctx)
	stat := db.pool.Stat()
	return Status{
		Connected:  err == nil,
		Latency:    time.Since(start),
		TotalConns: stat.TotalConns(),
		IdleConns:  stat.IdleConns(),
	}
}

// Pool returns the underlying pgxpool.Pool for repository use.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}
