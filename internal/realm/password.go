// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package realm

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters for newly stored passwords.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonSaltLen = 16
	argonKeyLen  = 32
)

// hashPassword produces an argon2id hash in PHC string form.
func hashPassword(password string) (string, error) {
	if password == "" {
		return "", oops.Code("INVALID_CREDENTIALS").Errorf("password cannot be empty")
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("STORE_PUT_FAILED").Wrap(err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// verifyPassword checks a password against a stored hash. argon2id hashes
// are the native format; sha256-crypt and sha512-crypt are accepted for
// entries imported from older installations.
func verifyPassword(hash, password string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(hash, password)
	case strings.HasPrefix(hash, sha256_crypt.MagicPrefix):
		return sha256_crypt.New().Verify(hash, []byte(password)) == nil
	case strings.HasPrefix(hash, sha512_crypt.MagicPrefix):
		return sha512_crypt.New().Verify(hash, []byte(password)) == nil
	default:
		return false
	}
}

// needsRehash reports whether a stored hash is in a legacy format that
// should be replaced on the next successful password change.
func needsRehash(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

func verifyArgon2id(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
