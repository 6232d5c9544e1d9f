package main

import (
	"github.com/smallbiznis/vouchr/internal/migration"
	"github.com/smallbiznis/vouchr/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and delivery workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				core(),
				migration.Module,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
