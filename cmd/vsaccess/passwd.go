// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewPasswdCmd creates the passwd subcommand.
func NewPasswdCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd <user@realm>",
		Short: "Set a user's password in its realm",
		Long: `Set a user's password through the realm's backend. Only realms that own
their credential store (the builtin type) support this. The password is
read from stdin unless --password is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			d, err := buildDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.close()

			if password == "" {
				password, err = readPassword(cmd)
				if err != nil {
					return err
				}
			}
			if err := d.service.ChangePassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			cmd.Println("password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (read from stdin when omitted)")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", oops.Code("INVALID_CREDENTIALS").Wrap(err)
		}
		return "", oops.Code("INVALID_CREDENTIALS").Errorf("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r\n")
	if password == "" {
		return "", oops.Code("INVALID_CREDENTIALS").Errorf("password cannot be empty")
	}
	return password, nil
}
