// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the vsaccess CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vsaccess",
		Short: "VirtStack access control",
		Long: `vsaccess manages the VirtStack access-control configuration:
users, groups, roles, ACLs and pools, plus the ticket key material
used to sign session and console tickets.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (YAML)")
	cmd.PersistentFlags().String("log.format", "", "log format: json or text")
	cmd.PersistentFlags().String("log.level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("keys.dir", "", "directory holding the ticket key material")
	cmd.PersistentFlags().String("store.backend", "", "config store backend: file or postgres")
	cmd.PersistentFlags().String("store.dir", "", "directory for the file store backend")
	cmd.PersistentFlags().String("store.database-url", "", "connection URL for the postgres backend")
	cmd.PersistentFlags().Duration("store.lock-timeout", 0, "lock acquisition timeout")

	cmd.AddCommand(NewCheckCfgCmd())
	cmd.AddCommand(NewTicketCmd())
	cmd.AddCommand(NewPasswdCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// resolveConfig loads the effective configuration for a subcommand
// invocation.
func resolveConfig(cmd *cobra.Command) (config, error) {
	flags := cmd.Flags()
	path, err := flags.GetString("config")
	if err != nil {
		return config{}, err
	}
	return loadConfig(path, flags)
}
