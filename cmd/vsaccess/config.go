// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/virtstack/access/internal/xdg"
)

// config is the resolved CLI configuration: YAML file first, command line
// flags on top.
type config struct {
	Log struct {
		Format string `koanf:"format"`
		Level  string `koanf:"level"`
	} `koanf:"log"`

	Keys struct {
		Dir string `koanf:"dir"`
	} `koanf:"keys"`

	Store struct {
		Backend     string        `koanf:"backend"` // "file" or "postgres"
		Dir         string        `koanf:"dir"`
		DatabaseURL string        `koanf:"database-url"`
		LockTimeout time.Duration `koanf:"lock-timeout"`
	} `koanf:"store"`

	// Realms maps realm names to their backend configuration. The "type"
	// option selects the backend; everything else is passed through.
	Realms map[string]map[string]string `koanf:"realms"`
}

// defaults seed the configuration before the file and flags are layered on
// top.
var defaults = map[string]any{
	"log.format":         "json",
	"log.level":          "info",
	"keys.dir":           "/etc/vsaccess/keys",
	"store.backend":      "file",
	"store.dir":          "/var/lib/vsaccess",
	"store.lock-timeout": 10 * time.Second,
}

// defaultConfigPath returns the first config file found in the standard
// locations, or "" when none exists.
func defaultConfigPath() string {
	candidates := []string{
		"/etc/vsaccess/config.yaml",
		filepath.Join(xdg.ConfigDir(), "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadConfig resolves the configuration from an optional YAML file and the
// command's flags. Flags win over the file, the file wins over defaults.
// An empty path falls back to the standard config locations.
func loadConfig(path string, flags *pflag.FlagSet) (config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return config{}, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return config{}, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	var cfg config
	if err := k.Unmarshal("", &cfg); err != nil {
		return config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if len(cfg.Realms) == 0 {
		cfg.Realms = map[string]map[string]string{"vs": {"type": "builtin"}}
	}
	if cfg.Store.Backend != "file" && cfg.Store.Backend != "postgres" {
		return config{}, oops.Code("CONFIG_INVALID").
			With("backend", cfg.Store.Backend).
			Errorf("store backend must be file or postgres")
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.DatabaseURL == "" {
		return config{}, oops.Code("CONFIG_INVALID").
			Errorf("store.database-url is required for the postgres backend")
	}
	return cfg, nil
}
