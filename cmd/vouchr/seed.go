package main

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/callbackauth"
	callbackauthdomain "github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	"github.com/smallbiznis/vouchr/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func seedCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo business and deal for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn    *gorm.DB
				node    *snowflake.Node
				secrets callbackauthdomain.Service
			)
			app := fx.New(toolCore(), callbackauth.Module, fx.Populate(&conn, &node, &secrets))
			if err := app.Err(); err != nil {
				return err
			}

			return runOnce(app, func(ctx context.Context) error {
				demo, err := seed.EnsureDemo(ctx, conn, node, secrets, secret)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "business %s\ndeal %s\n", demo.BusinessID, demo.DealID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", fmt.Sprintf("callback secret to store for the demo deal (at least %d characters)", callbackauthdomain.MinSecretLength))
	return cmd
}
