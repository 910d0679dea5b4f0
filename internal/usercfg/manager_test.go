// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/virtstack/access/internal/store"
	"github.com/virtstack/access/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend is an in-memory store.Backend that can simulate failures.
type fakeBackend struct {
	blobs   map[string][]byte
	getErr  error
	putErr  error
	lockErr error
	locks   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{blobs: map[string][]byte{}}
}

func (f *fakeBackend) Get(_ context.Context, name string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.blobs[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (f *fakeBackend) Put(_ context.Context, name string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.blobs[name] = data
	return nil
}

func (f *fakeBackend) Lock(ctx context.Context, _ string, fn func(context.Context) error) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locks++
	return fn(ctx)
}

var _ store.Backend = (*fakeBackend)(nil)

func TestManagerLoadMissingBlob(t *testing.T) {
	m := NewManager(newFakeBackend(), nil)

	cfg, warnings, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, cfg.Users)
	assert.Contains(t, cfg.Roles, "Administrator", "special roles present in the empty config")
}

func TestManagerLoadFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.getErr = errors.New("disk gone")
	m := NewManager(backend, nil)

	_, _, err := m.Load(context.Background())
	errutil.AssertErrorCode(t, err, "STORE_GET_FAILED")
}

func TestManagerUpdateRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := NewManager(backend, nil)

	require.NoError(t, m.Update(ctx, func(cfg *Config) error {
		return cfg.AddUser(&User{ID: "alice@vs", Enabled: true})
	}))
	assert.Equal(t, 1, backend.locks)

	cfg, _, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, cfg.Users, "alice@vs")
}

func TestManagerUpdateMutationErrorAborts(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := NewManager(backend, nil)

	wantErr := errors.New("nope")
	err := m.Update(ctx, func(*Config) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, backend.blobs, "nothing written after a failed mutation")
}

func TestManagerUpdateLockFailureIsFatal(t *testing.T) {
	backend := newFakeBackend()
	backend.lockErr = errors.New("lock held")
	m := NewManager(backend, nil)

	err := m.Update(context.Background(), func(*Config) error { return nil })
	assert.ErrorIs(t, err, backend.lockErr)
	assert.Zero(t, backend.locks, "no retry after a failed acquisition")
}

func TestManagerUpdatePutFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.putErr = errors.New("disk full")
	m := NewManager(backend, nil)

	err := m.Update(context.Background(), func(*Config) error { return nil })
	errutil.AssertErrorCode(t, err, "STORE_PUT_FAILED")
}
