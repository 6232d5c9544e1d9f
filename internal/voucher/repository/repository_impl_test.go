package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/dbtest"
	"github.com/smallbiznis/vouchr/internal/voucher/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertValidationIsIdempotentOnLedgerKey(t *testing.T) {
	db := dbtest.Open(t)
	seeded := dbtest.SeedDeal(t, db, dbtest.DealFixture{})
	repo := Provide()
	ctx := context.Background()

	first := &domain.Validation{
		ID:          snowflake.ID(dbtest.NextID()),
		BusinessID:  snowflake.ID(seeded.BusinessID),
		DealID:      snowflake.ID(seeded.DealID),
		ExternalRef: "txn-1",
	}
	inserted, err := repo.InsertValidation(ctx, db, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := *first
	second.ID = snowflake.ID(dbtest.NextID())
	inserted, err = repo.InsertValidation(ctx, db, &second)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.EqualValues(t, 1, dbtest.Count(t, db, "validations", "deal_id = ?", seeded.DealID))
}

func TestFindByExternalRefAndQRToken(t *testing.T) {
	db := dbtest.Open(t)
	seeded := dbtest.SeedDeal(t, db, dbtest.DealFixture{})
	id := dbtest.SeedVoucher(t, db, seeded, dbtest.VoucherFixture{ExternalRef: "txn-9", QRToken: "token-9"})
	repo := Provide()
	ctx := context.Background()

	got, err := repo.FindByExternalRef(ctx, db, snowflake.ID(seeded.DealID), "txn-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snowflake.ID(id), got.ID)
	assert.Equal(t, domain.StatusIssued, got.Status)

	missing, err := repo.FindByExternalRef(ctx, db, snowflake.ID(seeded.DealID), "txn-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byToken, err := repo.FindByQRToken(ctx, db, "token-9")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, snowflake.ID(id), byToken.ID)

	byID, err := repo.FindByID(ctx, db, snowflake.ID(id), true)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "token-9", byID.QRToken)
}

func TestMarkRedeemedIsCompareAndSet(t *testing.T) {
	db := dbtest.Open(t)
	seeded := dbtest.SeedDeal(t, db, dbtest.DealFixture{})
	id := snowflake.ID(dbtest.SeedVoucher(t, db, seeded, dbtest.VoucherFixture{}))
	repo := Provide()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, err := repo.MarkRedeemed(ctx, db, id, snowflake.ID(seeded.BusinessID+1), at)
	require.NoError(t, err)
	assert.False(t, ok, "other business must not match")

	ok, err = repo.MarkRedeemed(ctx, db, id, snowflake.ID(seeded.BusinessID), at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkRedeemed(ctx, db, id, snowflake.ID(seeded.BusinessID), at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "second redemption must miss")

	got, err := repo.FindByID(ctx, db, id, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRedeemed, got.Status)
	require.NotNil(t, got.RedeemedAt)
	assert.True(t, got.RedeemedAt.Equal(at))
}
