// Package repository implements the transactional upsert + audit trail
// (spec §4.B) against PostgreSQL, plus the read-only query operations.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PoolConfig bounds the shared connection pool (spec §5).
type PoolConfig struct {
	MaxOpenConns    int
	IdleTimeout     time.Duration
	AcquireTimeout  time.Duration
}

// DefaultPoolConfig matches spec.md §5's "max 20, 30s idle, 2s acquire".
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:   20,
		IdleTimeout:    30 * time.Second,
		AcquireTimeout: 2 * time.Second,
	}
}

// Store is the PostgreSQL-backed Repository.
type Store struct {
	db     *sql.DB
	pool   PoolConfig
}

// Open connects to Postgres and configures the pool per spec.md §5.
func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetConnMaxIdleTime(pool.IdleTimeout)

	return &Store{db: db, pool: pool}, nil
}

// DB exposes the underlying pool for migration bootstrapping.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.pool.AcquireTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// beginTx acquires a pooled connection bounded by the pool's acquire
// timeout, then starts a transaction on it scoped to the caller's ctx (so
// the acquire deadline does not truncate the transaction's own lifetime).
// conn.Close blocks until the transaction ends, so it runs in its own
// goroutine and hands the connection back to the pool after commit or
// rollback.
func (s *Store) beginTx(ctx context.Context) (*sql.Tx, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.pool.AcquireTimeout)
	defer cancel()

	conn, err := s.db.Conn(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("repository: acquire connection: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	go conn.Close()
	return tx, nil
}
