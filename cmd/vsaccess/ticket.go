// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/virtstack/access/internal/ticket"
	"github.com/virtstack/access/internal/usercfg"
)

// NewTicketCmd creates the ticket subcommand group.
func NewTicketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Issue and verify session tickets",
	}
	cmd.AddCommand(newTicketIssueCmd())
	cmd.AddCommand(newTicketVerifyCmd())
	return cmd
}

func newTicketIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <user@realm>",
		Short: "Issue a session ticket and CSRF token for a user",
		Long: `Issue a session ticket without going through authentication. This is a
key-holder operation for recovery and testing; anyone able to run it can
already read the signing key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := args[0]
			if _, _, err := usercfg.ParseUserID(user); err != nil {
				return err
			}
			authority, err := loadAuthority(cmd)
			if err != nil {
				return err
			}
			sessionTicket, err := authority.IssueLoginTicket(user)
			if err != nil {
				return err
			}
			cmd.Println(sessionTicket)
			cmd.Println(authority.IssueCSRFToken(user))
			return nil
		},
	}
}

func newTicketVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <ticket>",
		Short: "Verify a session ticket and print its user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, err := loadAuthority(cmd)
			if err != nil {
				return err
			}
			user, age, err := authority.VerifyLoginTicket(args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s (age %ds)\n", user, age)
			return nil
		},
	}
}

func loadAuthority(cmd *cobra.Command) (*ticket.Authority, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := ticket.EnsureKeys(cfg.Keys.Dir); err != nil {
		return nil, err
	}
	return ticket.LoadAuthority(cfg.Keys.Dir)
}
