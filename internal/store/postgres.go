// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package store

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// pgxPool is the subset of pgxpool.Pool the backend uses; tests substitute
// a pgxmock pool.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresBackend stores blobs in a single table and serializes writers
// with advisory locks, so the exclusive section holds across every node of
// a cluster sharing the database.
type PostgresBackend struct {
	pool        pgxPool
	lockTimeout time.Duration
}

// NewPostgresBackend connects a pool to the given DSN.
func NewPostgresBackend(ctx context.Context, dsn string, lockTimeout time.Duration) (*PostgresBackend, error) {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_INIT_FAILED").Wrap(err)
	}
	return &PostgresBackend{pool: pool, lockTimeout: lockTimeout}, nil
}

// newPostgresBackendWithPool is the test seam for pgxmock.
func newPostgresBackendWithPool(pool pgxPool, lockTimeout time.Duration) *PostgresBackend {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &PostgresBackend{pool: pool, lockTimeout: lockTimeout}
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

// Get implements Backend.
func (b *PostgresBackend) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := b.pool.QueryRow(ctx,
		`SELECT data FROM config_blobs WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_GET_FAILED").With("blob", name).Wrap(err)
	}
	return data, nil
}

// Put implements Backend with an upsert. A unique violation can still
// surface when two first-time writers race outside a lock; it is reported
// as a write conflict rather than swallowed.
func (b *PostgresBackend) Put(ctx context.Context, name string, data []byte) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO config_blobs (name, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		name, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("STORE_PUT_FAILED").
				With("blob", name).
				With("conflict", true).
				Wrap(err)
		}
		return oops.Code("STORE_PUT_FAILED").With("blob", name).Wrap(err)
	}
	return nil
}

// Lock implements Backend with a transaction-scoped advisory lock keyed by
// a hash of the blob name. The lock lives on the transaction's connection
// and is released when the transaction ends, so a crashed writer can never
// leave the lock held. Acquisition is bounded by the configured timeout.
func (b *PostgresBackend) Lock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := lockKey(name)

	acquireCtx, cancel := context.WithTimeout(ctx, b.lockTimeout)
	defer cancel()

	tx, err := b.pool.Begin(acquireCtx)
	if err != nil {
		return oops.Code("LOCK_FAILED").With("blob", name).Wrap(err)
	}
	defer func() {
		// Rollback with a fresh context: the caller's may already be done.
		// After a successful commit this is a no-op.
		rbCtx, rbCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rbCancel()
		_ = tx.Rollback(rbCtx) //nolint:errcheck // session teardown releases the lock anyway
	}()

	if _, err := tx.Exec(acquireCtx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return oops.Code("LOCK_FAILED").
			With("blob", name).
			With("timeout", b.lockTimeout.String()).
			Wrap(err)
	}

	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("LOCK_FAILED").With("blob", name).Wrap(err)
	}
	return nil
}

// lockKey maps a blob name onto the 64-bit advisory lock keyspace.
func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name)) //nolint:errcheck // fnv never fails
	return int64(h.Sum64())
}
