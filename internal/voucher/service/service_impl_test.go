package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/smallbiznis/vouchr/internal/audit/repository"
	auditservice "github.com/smallbiznis/vouchr/internal/audit/service"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/dbtest"
	dealdomain "github.com/smallbiznis/vouchr/internal/deal/domain"
	dealrepository "github.com/smallbiznis/vouchr/internal/deal/repository"
	"github.com/smallbiznis/vouchr/internal/voucher/domain"
	"github.com/smallbiznis/vouchr/internal/voucher/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 2026-03-02 is a Monday.
var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    domain.Service
	params Params
	db     *gorm.DB
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	cfg := config.Config{}
	cfg.Voucher.DefaultExpirationHours = 720

	params := Params{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      cfg,
		Policy:   config.NewStaticIssuancePolicy(config.DefaultIssuancePolicy()),
		Clock:    clk,
		GenID:    node,
		Repo:     repository.Provide(),
		DealRepo: dealrepository.Provide(),
		AuditSvc: auditSvc,
	}
	return fixture{svc: NewService(params), params: params, db: db, clock: clk}
}

func (f fixture) loadDeal(t *testing.T, seeded dbtest.Seeded) *dealdomain.DealWithBusiness {
	t.Helper()
	snapshot, err := dealrepository.Provide().GetDealWithBusiness(context.Background(), f.db, snowflake.ID(seeded.DealID))
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	return snapshot
}

func (f fixture) qrToken(t *testing.T, voucherID snowflake.ID) string {
	t.Helper()
	var token string
	require.NoError(t, f.db.Raw(`SELECT qr_token FROM vouchers WHERE id = ?`, voucherID).Scan(&token).Error)
	return token
}

func (f fixture) auditActions(t *testing.T, voucherID snowflake.ID) []string {
	t.Helper()
	var actions []string
	require.NoError(t, f.db.Raw(
		`SELECT action FROM voucher_audit_logs WHERE voucher_id = ? ORDER BY created_at, id`, voucherID,
	).Scan(&actions).Error)
	return actions
}
