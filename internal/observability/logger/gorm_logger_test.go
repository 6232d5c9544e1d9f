package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from vouchers"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH x AS (select 1) UPDATE vouchers SET status = 'REDEEMED'"))
	assert.Equal(t, "INSERT", operationFromSQL("  INSERT INTO validations"))
	assert.Equal(t, "DELETE", operationFromSQL("with stale as (select id from vouchers) delete from vouchers where id in (select id from stale)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL("BEGIN"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "vouchers", tableFromSQL(`SELECT * FROM "vouchers" WHERE qr_token = ? FOR UPDATE`))
	assert.Equal(t, "payment_callback_attempts", tableFromSQL("INSERT INTO payment_callback_attempts (id) VALUES (?)"))
	assert.Equal(t, "deals", tableFromSQL("update deals set vouchers_issued = vouchers_issued + 1"))
	assert.Equal(t, "", tableFromSQL("SELECT 1"))
}

func TestHoldsRowLock(t *testing.T) {
	assert.True(t, holdsRowLock("SELECT * FROM vouchers WHERE id = ? for update"))
	assert.False(t, holdsRowLock("SELECT * FROM vouchers WHERE id = ?"))
}

func TestGormLoggerTraceLogsErrorsWithoutParams(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "UPDATE vouchers SET status = ? WHERE id = ?", 0
	}, errors.New("boom"))

	entries := logs.FilterMessage("gorm.query").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "UPDATE", fields["operation"])
		assert.Equal(t, "vouchers", fields["table"])
		assert.Equal(t, "boom", fields["error"])
	}

	sql, params := l.ParamsFilter(context.Background(), "SELECT 1", "secret")
	assert.Equal(t, "SELECT 1", sql)
	assert.Nil(t, params)
}

func TestGormLoggerIgnoresNotFoundWhenConfigured(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, IgnoreRecordNotFound: true})
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gormlogger.ErrRecordNotFound)

	assert.Zero(t, logs.Len())
}
