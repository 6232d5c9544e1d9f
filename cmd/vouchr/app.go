package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/observability"
	"github.com/smallbiznis/vouchr/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RegisterSnowflake derives the node id from SNOWFLAKE_NODE so replicas do
// not mint colliding ids.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// core is the infrastructure every command needs.
func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// toolCore is core without telemetry exporters, for short-lived commands.
func toolCore() fx.Option {
	return fx.Options(
		fx.NopLogger,
		config.Module,
		fx.Provide(func() (*zap.Logger, error) {
			return zap.NewProduction()
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// runOnce starts app, runs fn and stops app again.
func runOnce(app *fx.App, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)
	if err := app.Stop(ctx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
