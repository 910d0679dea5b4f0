// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package ticket

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // established derivation for the HMAC secret
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// Key material file names inside the authority directory.
const (
	PrivateKeyFile = "authkey.key"
	PublicKeyFile  = "authkey.pub"
	SecretKeyFile  = "secret.key"
)

const authorityKeyBits = 2048

// LoadAuthority reads the three key files from dir and builds an Authority.
// All material is loaded eagerly; a missing or malformed file fails
// construction rather than surfacing later on the first signing call.
func LoadAuthority(dir string, opts ...Option) (*Authority, error) {
	private, err := loadPrivateKey(filepath.Join(dir, PrivateKeyFile))
	if err != nil {
		return nil, err
	}
	public, err := loadPublicKey(filepath.Join(dir, PublicKeyFile))
	if err != nil {
		return nil, err
	}
	secret, err := loadSecret(filepath.Join(dir, SecretKeyFile))
	if err != nil {
		return nil, err
	}
	return New(private, public, secret, opts...), nil
}

// EnsureKeys generates any missing key files in dir. Existing files are left
// untouched, so a node that already holds cluster-wide material keeps it.
func EnsureKeys(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("KEY_LOAD_FAILED").With("dir", dir).Wrap(err)
	}

	privPath := filepath.Join(dir, PrivateKeyFile)
	pubPath := filepath.Join(dir, PublicKeyFile)
	if missing(privPath) || missing(pubPath) {
		key, err := rsa.GenerateKey(rand.Reader, authorityKeyBits)
		if err != nil {
			return oops.Code("KEY_LOAD_FAILED").Wrap(err)
		}
		privPEM := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
		pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			return oops.Code("KEY_LOAD_FAILED").Wrap(err)
		}
		pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
		if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
			return oops.Code("KEY_LOAD_FAILED").With("path", privPath).Wrap(err)
		}
		if err := os.WriteFile(pubPath, pubPEM, 0o640); err != nil {
			return oops.Code("KEY_LOAD_FAILED").With("path", pubPath).Wrap(err)
		}
	}

	secretPath := filepath.Join(dir, SecretKeyFile)
	if missing(secretPath) {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return oops.Code("KEY_LOAD_FAILED").Wrap(err)
		}
		encoded := base64.StdEncoding.EncodeToString(raw) + "\n"
		if err := os.WriteFile(secretPath, []byte(encoded), 0o600); err != nil {
			return oops.Code("KEY_LOAD_FAILED").With("path", secretPath).Wrap(err)
		}
	}
	return nil
}

func missing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", path).Wrap(err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", path).
			Errorf("private key is %T, want RSA", parsed)
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", path).Wrap(err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", path).
			Errorf("public key is %T, want RSA", parsed)
	}
	return key, nil
}

// loadSecret derives the symmetric HMAC key from the secret key file. The
// digest of the file contents is the key, so whitespace or encoding of the
// stored value never matters as long as the bytes are stable.
func loadSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", path).Wrap(err)
	}
	digest := sha1.Sum(data) //nolint:gosec
	return digest[:], nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", path).
			Wrap(fmt.Errorf("no PEM block found"))
	}
	return block, nil
}
