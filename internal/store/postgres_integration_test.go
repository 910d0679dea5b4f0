//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/virtstack/access/internal/store"
)

// startPostgres launches a disposable PostgreSQL container and applies the
// schema migrations.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("access"),
		postgres.WithUsername("access"),
		postgres.WithPassword("access"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer migrator.Close()
	require.NoError(t, migrator.Up())

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Greater(t, version, uint(0))
	assert.False(t, dirty)

	return connStr
}

func TestPostgresBackend_Integration(t *testing.T) {
	ctx := context.Background()
	connStr := startPostgres(t)

	backend, err := store.NewPostgresBackend(ctx, connStr, 5*time.Second)
	require.NoError(t, err)
	defer backend.Close()

	t.Run("missing blob", func(t *testing.T) {
		_, err := backend.Get(ctx, "user.cfg")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("put and get round trip", func(t *testing.T) {
		require.NoError(t, backend.Put(ctx, "user.cfg", []byte("first")))
		data, err := backend.Get(ctx, "user.cfg")
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), data)

		require.NoError(t, backend.Put(ctx, "user.cfg", []byte("second")))
		data, err = backend.Get(ctx, "user.cfg")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})

	t.Run("lock serializes read-modify-write", func(t *testing.T) {
		require.NoError(t, backend.Put(ctx, "shadow.cfg", []byte("a")))

		err := backend.Lock(ctx, "shadow.cfg", func(ctx context.Context) error {
			data, err := backend.Get(ctx, "shadow.cfg")
			if err != nil {
				return err
			}
			return backend.Put(ctx, "shadow.cfg", append(data, 'b'))
		})
		require.NoError(t, err)

		data, err := backend.Get(ctx, "shadow.cfg")
		require.NoError(t, err)
		assert.Equal(t, []byte("ab"), data)
	})

	t.Run("second writer waits for the lock", func(t *testing.T) {
		release := make(chan struct{})
		held := make(chan struct{})

		go func() {
			_ = backend.Lock(ctx, "user.cfg", func(context.Context) error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held

		start := time.Now()
		go func() {
			time.Sleep(200 * time.Millisecond)
			close(release)
		}()
		err := backend.Lock(ctx, "user.cfg", func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	})
}

func TestMigratorDown_Integration(t *testing.T) {
	connStr := startPostgres(t)

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer migrator.Close()

	require.NoError(t, migrator.Down())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}
