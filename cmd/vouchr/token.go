package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/session"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		business string
		subject  string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a business session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			businessID, err := snowflake.ParseString(strings.TrimSpace(business))
			if err != nil || businessID <= 0 {
				return fmt.Errorf("--business must be a numeric business id")
			}

			manager := session.NewManager(config.Load(), clock.SystemClock{})
			token, err := manager.Issue(session.Principal{
				BusinessID: businessID,
				Subject:    subject,
				Role:       session.Role(strings.ToUpper(strings.TrimSpace(role))),
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&business, "business", "", "business id")
	cmd.Flags().StringVar(&subject, "subject", "", "staff member id")
	cmd.Flags().StringVar(&role, "role", string(session.RoleVendor), "VENDOR or ADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to 12h")
	return cmd
}
