package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/vouchr/internal/migration"
	pkgdb "github.com/smallbiznis/vouchr/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			var conn *gorm.DB
			app := fx.New(toolCore(), fx.Populate(&conn))
			if err := app.Err(); err != nil {
				return err
			}

			return runOnce(app, func(ctx context.Context) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.RunMigrations(sqlDB, pkgdb.Name(conn)); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}
