// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package main

import (
	"fmt"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/virtstack/access/internal/usercfg"
)

// NewCheckCfgCmd creates the checkcfg subcommand.
func NewCheckCfgCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "checkcfg [file]",
		Short: "Parse an access configuration and report problems",
		Long: `Parse the access configuration and print every warning the parser
collects. With a file argument the file is checked directly; without one
the configured store is read. Parsing is lossy-tolerant: bad lines are
skipped, never fatal, so a config that loads with warnings still works
minus the skipped entries.

With --write the cleaned configuration is serialized back, dropping
everything the parser warned about.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckCfg(cmd, args, write)
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write the cleaned config back")
	return cmd
}

func runCheckCfg(cmd *cobra.Command, args []string, write bool) error {
	if len(args) == 1 {
		return checkCfgFile(cmd, args[0], write)
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	d, err := buildDeps(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer d.close()

	snapshot, warnings, err := d.configs.Load(cmd.Context())
	if err != nil {
		return err
	}
	reportWarnings(cmd, warnings)
	if write && len(warnings) > 0 {
		if err := d.backend.Put(cmd.Context(), usercfg.BlobName, usercfg.Serialize(snapshot)); err != nil {
			return err
		}
		cmd.Println("cleaned configuration written")
	}
	summarize(cmd, snapshot)
	return nil
}

func checkCfgFile(cmd *cobra.Command, path string, write bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return oops.Code("STORE_GET_FAILED").With("path", path).Wrap(err)
	}
	snapshot, warnings := usercfg.Parse(data)
	reportWarnings(cmd, warnings)
	if write && len(warnings) > 0 {
		if err := os.WriteFile(path, usercfg.Serialize(snapshot), 0o600); err != nil {
			return oops.Code("STORE_PUT_FAILED").With("path", path).Wrap(err)
		}
		cmd.Println("cleaned configuration written")
	}
	summarize(cmd, snapshot)
	return nil
}

func reportWarnings(cmd *cobra.Command, warnings []usercfg.Warning) {
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w.String())
	}
}

func summarize(cmd *cobra.Command, cfg *usercfg.Config) {
	cmd.Printf("%d users, %d groups, %d roles, %d acl paths, %d pools\n",
		len(cfg.Users), len(cfg.Groups), len(cfg.Roles), len(cfg.ACL), len(cfg.Pools))
}
