package migration

import (
	"github.com/smallbiznis/vouchr/internal/config"
	pkgdb "github.com/smallbiznis/vouchr/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("automatic migrations disabled")
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		return RunMigrations(sqlDB, pkgdb.Name(conn))
	}),
)
