// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package store persists named configuration blobs. Blobs are opaque to the
// store and always read and written wholesale; the exclusive lock makes a
// read-modify-write cycle safe against concurrent writers, in-process or
// not.
package store

import (
	"context"
	"errors"
)

// ErrNotFound reports that no blob with the requested name exists.
var ErrNotFound = errors.New("blob not found")

// Backend is the persistence contract for configuration blobs.
type Backend interface {
	// Get returns the current contents of the named blob.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put replaces the named blob atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Lock runs fn while holding the exclusive lock for name. Lock
	// acquisition is bounded; failure to acquire is fatal to this one
	// call and never retried internally.
	Lock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}
