// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultLockTimeout bounds lock acquisition when the caller does not
// configure one.
const DefaultLockTimeout = 10 * time.Second

// lockPollInterval is the base delay between lock acquisition attempts.
const lockPollInterval = 100 * time.Millisecond

// FileBackend stores each blob as a file in one directory. Writes go
// through a temp file and rename, so readers never observe a partial blob.
// The exclusive section is an O_EXCL lock file next to the blob.
type FileBackend struct {
	dir         string
	lockTimeout time.Duration
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates the directory if needed and returns the backend.
func NewFileBackend(dir string, lockTimeout time.Duration) (*FileBackend, error) {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, oops.Code("STORE_INIT_FAILED").With("dir", dir).Wrap(err)
	}
	return &FileBackend{dir: dir, lockTimeout: lockTimeout}, nil
}

func (b *FileBackend) blobPath(name string) string {
	return filepath.Join(b.dir, name)
}

// Get reads the named blob.
func (b *FileBackend) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.blobPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_GET_FAILED").With("blob", name).Wrap(err)
	}
	return data, nil
}

// Put replaces the named blob atomically: write a temp file in the same
// directory, fsync, then rename over the target.
func (b *FileBackend) Put(_ context.Context, name string, data []byte) error {
	fail := func(err error) error {
		return oops.Code("STORE_PUT_FAILED").With("blob", name).Wrap(err)
	}

	tmp, err := os.CreateTemp(b.dir, "."+name+"-*")
	if err != nil {
		return fail(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpName, b.blobPath(name)); err != nil {
		return fail(err)
	}
	return nil
}

// Lock acquires the per-name lock file and runs fn. Acquisition is bounded
// by the configured timeout; the critical section itself keeps the caller's
// context. A lock file older than twice the timeout is considered abandoned
// by a crashed writer and broken.
func (b *FileBackend) Lock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	lockPath := b.blobPath(name) + ".lock"

	acquireCtx, cancel := context.WithTimeout(ctx, b.lockTimeout)
	defer cancel()

	backoff := retry.WithJitter(20*time.Millisecond, retry.NewConstant(lockPollInterval))
	err := retry.Do(acquireCtx, backoff, func(ctx context.Context) error {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		b.breakStaleLock(lockPath)
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("LOCK_FAILED").With("blob", name).
			With("timeout", b.lockTimeout.String()).Wrap(err)
	}
	defer os.Remove(lockPath)

	return fn(ctx)
}

// breakStaleLock removes a lock file left behind by a crashed writer.
func (b *FileBackend) breakStaleLock(lockPath string) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > 2*b.lockTimeout {
		os.Remove(lockPath)
	}
}
