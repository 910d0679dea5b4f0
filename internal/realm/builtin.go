// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package realm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/oops"

	"github.com/virtstack/access/internal/store"
)

// TypeBuiltin is the type tag of the local-database realm backend.
const TypeBuiltin = "builtin"

// ShadowBlob names the blob holding the builtin realm's password hashes,
// one "user@realm:hash" line per entry.
const ShadowBlob = "shadow.cfg"

// BuiltinBackend verifies credentials against hashes kept in the config
// store. It is the only backend that owns its credential store and can
// therefore set passwords.
type BuiltinBackend struct {
	store  store.Backend
	logger *slog.Logger
}

var (
	_ Backend        = (*BuiltinBackend)(nil)
	_ PasswordStorer = (*BuiltinBackend)(nil)
)

// NewBuiltinBackend returns a backend reading and writing ShadowBlob
// through the given store.
func NewBuiltinBackend(backend store.Backend, logger *slog.Logger) *BuiltinBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuiltinBackend{store: backend, logger: logger}
}

// Authenticate checks the password against the stored hash for
// username@realm. A missing shadow blob, a missing entry and a wrong
// password are indistinguishable to the caller.
func (b *BuiltinBackend) Authenticate(ctx context.Context, _ Config, realm, username, password string) error {
	invalid := oops.Code("INVALID_CREDENTIALS").Errorf("authentication failed")

	data, err := b.store.Get(ctx, ShadowBlob)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid
		}
		return oops.Code("STORE_GET_FAILED").With("blob", ShadowBlob).Wrap(err)
	}

	hash, ok := parseShadow(data)[username+"@"+realm]
	if !ok || !verifyPassword(hash, password) {
		return invalid
	}
	if needsRehash(hash) {
		b.logger.InfoContext(ctx, "password hash uses a legacy format",
			"user", username+"@"+realm)
	}
	return nil
}

// StorePassword hashes the new password and replaces the entry for
// username@realm under the store's exclusive lock.
func (b *BuiltinBackend) StorePassword(ctx context.Context, _ Config, realm, username, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return b.store.Lock(ctx, ShadowBlob, func(ctx context.Context) error {
		data, err := b.store.Get(ctx, ShadowBlob)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return oops.Code("STORE_GET_FAILED").With("blob", ShadowBlob).Wrap(err)
		}
		entries := parseShadow(data)
		entries[username+"@"+realm] = hash
		if err := b.store.Put(ctx, ShadowBlob, serializeShadow(entries)); err != nil {
			return oops.Code("STORE_PUT_FAILED").With("blob", ShadowBlob).Wrap(err)
		}
		return nil
	})
}

// DeletePassword drops the entry for username@realm, if any. Called when
// the user is removed so stale hashes never outlive the account.
func (b *BuiltinBackend) DeletePassword(ctx context.Context, realm, username string) error {
	return b.store.Lock(ctx, ShadowBlob, func(ctx context.Context) error {
		data, err := b.store.Get(ctx, ShadowBlob)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return oops.Code("STORE_GET_FAILED").With("blob", ShadowBlob).Wrap(err)
		}
		entries := parseShadow(data)
		if _, ok := entries[username+"@"+realm]; !ok {
			return nil
		}
		delete(entries, username+"@"+realm)
		if err := b.store.Put(ctx, ShadowBlob, serializeShadow(entries)); err != nil {
			return oops.Code("STORE_PUT_FAILED").With("blob", ShadowBlob).Wrap(err)
		}
		return nil
	})
}

// parseShadow reads user-to-hash lines, skipping anything malformed. The
// hash part may itself contain colons, so only the first separator counts.
func parseShadow(data []byte) map[string]string {
	entries := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok || user == "" || hash == "" {
			continue
		}
		entries[user] = hash
	}
	return entries
}

func serializeShadow(entries map[string]string) []byte {
	users := make([]string, 0, len(entries))
	for user := range entries {
		users = append(users, user)
	}
	sort.Strings(users)

	var buf bytes.Buffer
	for _, user := range users {
		buf.WriteString(user)
		buf.WriteByte(':')
		buf.WriteString(entries[user])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
