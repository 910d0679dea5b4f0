// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/virtstack/access/internal/auth"
	"github.com/virtstack/access/internal/logging"
	"github.com/virtstack/access/internal/realm"
	"github.com/virtstack/access/internal/store"
	"github.com/virtstack/access/internal/ticket"
	"github.com/virtstack/access/internal/usercfg"
)

// deps holds the wired collaborators a subcommand works with.
type deps struct {
	logger  *slog.Logger
	backend store.Backend
	configs *usercfg.Manager
	service *auth.Service
	close   func()
}

// newStoreBackend builds the configured blob store.
func newStoreBackend(ctx context.Context, cfg config) (store.Backend, func(), error) {
	if cfg.Store.Backend == "postgres" {
		backend, err := store.NewPostgresBackend(ctx, cfg.Store.DatabaseURL, cfg.Store.LockTimeout)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	}
	backend, err := store.NewFileBackend(cfg.Store.Dir, cfg.Store.LockTimeout)
	if err != nil {
		return nil, nil, err
	}
	return backend, func() {}, nil
}

// buildDeps wires the full service stack from a resolved configuration.
func buildDeps(ctx context.Context, cfg config) (*deps, error) {
	logger := logging.Setup("vsaccess", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), nil)

	backend, closeBackend, err := newStoreBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := ticket.EnsureKeys(cfg.Keys.Dir); err != nil {
		closeBackend()
		return nil, err
	}
	authority, err := ticket.LoadAuthority(cfg.Keys.Dir)
	if err != nil {
		closeBackend()
		return nil, err
	}

	registry := realm.NewRegistry()
	registry.Register(realm.TypeBuiltin, realm.NewBuiltinBackend(backend, logger))

	realms := make(map[string]realm.Config, len(cfg.Realms))
	for name, options := range cfg.Realms {
		realmCfg := realm.Config{Type: options["type"], Options: options}
		if realmCfg.Type == "" {
			realmCfg.Type = realm.TypeBuiltin
		}
		realms[name] = realmCfg
	}

	configs := usercfg.NewManager(backend, logger)
	service := auth.NewService(configs, authority, registry, realms, logger)

	return &deps{
		logger:  logger,
		backend: backend,
		configs: configs,
		service: service,
		close:   closeBackend,
	}, nil
}
