// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package usercfg

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/virtstack/access/internal/store"
)

// BlobName is the name of the configuration blob in the backing store.
const BlobName = "user.cfg"

// Manager loads and mutates the configuration through a store.Backend.
// Reads parse a fresh snapshot on every call; writes run a whole-blob
// read-modify-write cycle under the backend's named exclusive lock. A lock
// that cannot be acquired fails the single operation and is never retried
// here — the caller decides.
type Manager struct {
	backend store.Backend
	logger  *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default.
func NewManager(backend store.Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backend: backend, logger: logger}
}

// Load reads and parses the current configuration snapshot. A missing blob
// is an empty configuration, not an error.
func (m *Manager) Load(ctx context.Context) (*Config, []Warning, error) {
	data, err := m.backend.Get(ctx, BlobName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewConfig(), nil, nil
		}
		return nil, nil, oops.Code("STORE_GET_FAILED").With("blob", BlobName).Wrap(err)
	}
	cfg, warnings := Parse(data)
	m.logWarnings(ctx, warnings)
	return cfg, warnings, nil
}

// Update runs mutate against the latest snapshot inside the exclusive lock
// and writes the result back. The cycle is atomic from the caller's
// perspective: concurrent writers serialize on the lock, so no update is
// lost.
func (m *Manager) Update(ctx context.Context, mutate func(cfg *Config) error) error {
	return m.backend.Lock(ctx, BlobName, func(ctx context.Context) error {
		cfg, _, err := m.Load(ctx)
		if err != nil {
			return err
		}
		if err := mutate(cfg); err != nil {
			return err
		}
		if err := m.backend.Put(ctx, BlobName, Serialize(cfg)); err != nil {
			return oops.Code("STORE_PUT_FAILED").With("blob", BlobName).Wrap(err)
		}
		return nil
	})
}

func (m *Manager) logWarnings(ctx context.Context, warnings []Warning) {
	for _, w := range warnings {
		m.logger.WarnContext(ctx, "config parse warning",
			"blob", BlobName,
			"line", w.Line,
			"warning", w.Message,
		)
	}
}
