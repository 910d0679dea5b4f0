// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package xdg provides XDG Base Directory paths for vsaccess.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "vsaccess"

// ConfigDir returns the XDG config directory for vsaccess.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DataDir returns the XDG data directory for vsaccess.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return filepath.Join(base, appName)
}
