// Package dbtest opens throwaway SQLite databases with the production schema.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/vouchr/internal/migration"
	pkgdb "github.com/smallbiznis/vouchr/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	seq   atomic.Int64
	idSeq atomic.Int64
)

// NextID returns a process-unique id for fixture rows.
func NextID() int64 {
	return 1_000_000 + idSeq.Add(1)
}

// Open returns a migrated in-memory database private to the test. A single
// connection is kept so concurrent callers queue on the pool the way they
// would queue on row locks in Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:vouchr-test-%d?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.RunMigrations(sqlDB, pkgdb.DialectSQLite))
	return conn
}
