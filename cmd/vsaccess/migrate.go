// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/virtstack/access/internal/store"
)

// NewMigrateCmd creates the migrate subcommand group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage schema migrations for the postgres store backend",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping the stored configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Rolling back migrations...")
				if err := m.Down(); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				return printMigrationStatus(cmd, m)
			})
		},
	})
	return cmd
}

// withMigrator resolves the configuration, builds a migrator and hands it to
// fn, closing it afterwards.
func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Backend != "postgres" {
		return oops.Code("CONFIG_INVALID").
			Errorf("migrate requires the postgres store backend")
	}

	migrator, err := store.NewMigrator(cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return fn(migrator)
}

func printMigrationStatus(cmd *cobra.Command, m *store.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("schema version %d (dirty: repair required)\n", version)
		return nil
	}
	cmd.Printf("schema version %d\n", version)
	return nil
}
