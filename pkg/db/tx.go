package db

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// Serializable runs fn inside the strictest transaction the dialect offers.
// Postgres and MySQL get SERIALIZABLE isolation; SQLite transactions are
// already serializable.
func Serializable(ctx context.Context, conn *gorm.DB, cfg TxConfig, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	switch Name(conn) {
	case DialectPostgres, DialectMySQL:
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}
	return run(ctx, conn, cfg, fn, opts...)
}

// Transaction runs fn at the default isolation level with the same timeout
// bounds as Serializable.
func Transaction(ctx context.Context, conn *gorm.DB, cfg TxConfig, fn func(tx *gorm.DB) error) error {
	return run(ctx, conn, cfg, fn)
}

func run(ctx context.Context, conn *gorm.DB, cfg TxConfig, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	dialect := Name(conn)
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if dialect == DialectPostgres {
			if cfg.LockTimeout > 0 {
				if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", cfg.LockTimeout.Milliseconds())).Error; err != nil {
					return err
				}
			}
			if cfg.StatementTimeout > 0 {
				if err := tx.Exec(fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", cfg.StatementTimeout.Milliseconds())).Error; err != nil {
					return err
				}
			}
		}
		return fn(tx)
	}, opts...)
}

// ForUpdate returns the row-locking suffix for SELECT statements, or an empty
// string for dialects that lock the whole database on write.
func ForUpdate(conn *gorm.DB) string {
	if Name(conn) == DialectSQLite {
		return ""
	}
	return " FOR UPDATE"
}
