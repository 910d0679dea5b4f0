// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package realm dispatches primary-credential verification to the backend
// registered for a realm's type. The core never branches on backend
// internals; adding an authentication source means registering another
// Backend implementation, not growing a switch.
package realm

import (
	"context"

	"github.com/samber/oops"
)

// Config is the realm-specific configuration handed to a backend. Options
// carry backend-specific settings (directory server address, base DN,
// validation endpoint and API credentials, and so on).
type Config struct {
	Type    string
	Options map[string]string
}

// Backend verifies primary credentials for one realm type.
type Backend interface {
	// Authenticate verifies username/password within the named realm.
	// A failure must carry the INVALID_CREDENTIALS code; any cause
	// detail belongs in error context, not the message.
	Authenticate(ctx context.Context, cfg Config, realm, username, password string) error
}

// PasswordStorer is implemented by backends that own their credential
// store and can set a new password.
type PasswordStorer interface {
	StorePassword(ctx context.Context, cfg Config, realm, username, password string) error
}

// Registry maps realm type tags to backends. Populate it once at startup;
// it is not safe for concurrent mutation afterwards.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: map[string]Backend{}}
}

// Register binds a backend to a realm type tag, replacing any previous
// binding.
func (r *Registry) Register(realmType string, backend Backend) {
	r.backends[realmType] = backend
}

// Lookup returns the backend for a realm type.
func (r *Registry) Lookup(realmType string) (Backend, error) {
	backend, ok := r.backends[realmType]
	if !ok {
		return nil, oops.Code("UNKNOWN_REALM").With("type", realmType).
			Errorf("no backend registered for realm type %q", realmType)
	}
	return backend, nil
}

// Types returns the registered realm type tags.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.backends))
	for t := range r.backends {
		types = append(types, t)
	}
	return types
}
