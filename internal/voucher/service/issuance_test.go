package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/dbtest"
	"github.com/smallbiznis/vouchr/internal/voucher/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIssueCreatesVoucher(t *testing.T) {
	f := newFixture(t)
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{ExpirationHours: 48})

	out := f.svc.Issue(context.Background(), domain.IssueRequest{
		Deal:              f.loadDeal(t, seeded),
		ExternalRef:       "txn-1",
		CustomerReference: "alice@example.com",
	})
	require.NoError(t, out.Err)
	require.Equal(t, domain.IssueCreated, out.Kind)
	require.NotZero(t, out.VoucherID)

	view, err := f.svc.Get(context.Background(), out.VoucherID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, view.Status)
	assert.True(t, view.IssuedAt.Equal(testNow))
	assert.True(t, view.ExpiresAt.Equal(testNow.Add(48*time.Hour)))

	token := f.qrToken(t, out.VoucherID)
	assert.Len(t, token, 43)

	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "validations", "deal_id = ? AND external_ref = ?", seeded.DealID, "txn-1"))
	assert.Equal(t, []string{"ISSUED"}, f.auditActions(t, out.VoucherID))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "deals", "id = ? AND issued_count = 1", seeded.DealID))
}

func TestIssueIsIdempotentPerExternalRef(t *testing.T) {
	f := newFixture(t)
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{})
	req := domain.IssueRequest{Deal: f.loadDeal(t, seeded), ExternalRef: "txn-dup"}

	first := f.svc.Issue(context.Background(), req)
	require.Equal(t, domain.IssueCreated, first.Kind)

	second := f.svc.Issue(context.Background(), req)
	require.Equal(t, domain.IssueAlreadyExists, second.Kind)
	assert.Equal(t, first.VoucherID, second.VoucherID)

	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "vouchers", "deal_id = ?", seeded.DealID))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "deals", "id = ? AND issued_count = 1", seeded.DealID))
}

func TestIssueSameExternalRefOnDifferentDeals(t *testing.T) {
	f := newFixture(t)
	a := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{})
	b := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{})

	outA := f.svc.Issue(context.Background(), domain.IssueRequest{Deal: f.loadDeal(t, a), ExternalRef: "shared"})
	outB := f.svc.Issue(context.Background(), domain.IssueRequest{Deal: f.loadDeal(t, b), ExternalRef: "shared"})

	assert.Equal(t, domain.IssueCreated, outA.Kind)
	assert.Equal(t, domain.IssueCreated, outB.Kind)
	assert.NotEqual(t, outA.VoucherID, outB.VoucherID)
}

func TestIssueConcurrentCallbacksConverge(t *testing.T) {
	f := newFixture(t)
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{})
	req := domain.IssueRequest{Deal: f.loadDeal(t, seeded), ExternalRef: "txn-race"}

	const workers = 8
	outcomes := make([]domain.IssueOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.svc.Issue(context.Background(), req)
		}(i)
	}
	wg.Wait()

	created := 0
	var voucherID snowflake.ID
	for _, out := range outcomes {
		require.NoError(t, out.Err)
		if out.Kind == domain.IssueCreated {
			created++
			voucherID = out.VoucherID
		} else {
			require.Equal(t, domain.IssueAlreadyExists, out.Kind)
		}
	}
	require.Equal(t, 1, created)
	for _, out := range outcomes {
		assert.Equal(t, voucherID, out.VoucherID)
	}

	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "validations", "deal_id = ?", seeded.DealID))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "vouchers", "deal_id = ?", seeded.DealID))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "voucher_audit_logs", "voucher_id = ? AND action = ?", voucherID, "ISSUED"))
}

// staleLedgerRepo hides committed ledger keys from the first lookups, the
// way a transaction that started before the winner committed sees them.
type staleLedgerRepo struct {
	domain.Repository
	hidden atomic.Int32
	seen   atomic.Int32
}

func (r *staleLedgerRepo) FindByExternalRef(ctx context.Context, db *gorm.DB, dealID snowflake.ID, externalRef string) (*domain.Voucher, error) {
	if r.seen.Add(1) <= r.hidden.Load() {
		return nil, nil
	}
	return r.Repository.FindByExternalRef(ctx, db, dealID, externalRef)
}

func TestIssueLedgerConflictConvergesOnWinner(t *testing.T) {
	f := newFixture(t)
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{})
	req := domain.IssueRequest{Deal: f.loadDeal(t, seeded), ExternalRef: "txn-late"}

	winner := f.svc.Issue(context.Background(), req)
	require.Equal(t, domain.IssueCreated, winner.Kind)

	stale := &staleLedgerRepo{Repository: f.params.Repo}
	stale.hidden.Store(2)
	p := f.params
	p.Repo = stale
	loser := NewService(p).Issue(context.Background(), req)

	require.NoError(t, loser.Err)
	assert.Equal(t, domain.IssueAlreadyExists, loser.Kind)
	assert.Equal(t, winner.VoucherID, loser.VoucherID)
	assert.EqualValues(t, 3, stale.seen.Load(), "pre-check, conflicting attempt, converging retry")

	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "vouchers", "deal_id = ?", seeded.DealID))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "validations", "deal_id = ?", seeded.DealID))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "deals", "id = ? AND issued_count = 1", seeded.DealID))
}

func TestIssueEnforcesVoucherCap(t *testing.T) {
	f := newFixture(t)
	limit := 2
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{MaxVouchers: &limit})
	deal := f.loadDeal(t, seeded)

	for _, ref := range []string{"a", "b"} {
		out := f.svc.Issue(context.Background(), domain.IssueRequest{Deal: deal, ExternalRef: ref})
		require.Equal(t, domain.IssueCreated, out.Kind, ref)
	}

	out := f.svc.Issue(context.Background(), domain.IssueRequest{Deal: deal, ExternalRef: "c"})
	assert.Equal(t, domain.IssueRejected, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrDealSoldOut)
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "validations", "external_ref = ?", "c"))

	retry := f.svc.Issue(context.Background(), domain.IssueRequest{Deal: deal, ExternalRef: "a"})
	assert.Equal(t, domain.IssueAlreadyExists, retry.Kind, "a duplicate of an issued payment is not sold out")
}

func TestIssueHookFailureLeavesNoOrphans(t *testing.T) {
	f := newFixture(t)
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{})
	boom := errors.New("attempt insert failed")

	out := f.svc.Issue(context.Background(), domain.IssueRequest{
		Deal:        f.loadDeal(t, seeded),
		ExternalRef: "txn-boom",
		OnIssued: func(ctx context.Context, tx *gorm.DB, v *domain.Voucher) error {
			return boom
		},
	})
	assert.Equal(t, domain.IssueTransientFailure, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrTransactionError)
	assert.ErrorIs(t, out.Err, boom)

	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "validations", "deal_id = ?", seeded.DealID))
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "vouchers", "deal_id = ?", seeded.DealID))
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "voucher_audit_logs", ""))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "deals", "id = ? AND issued_count = 0", seeded.DealID))
}

func TestIssueHookRunsInsideTransaction(t *testing.T) {
	f := newFixture(t)
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{})

	var seen int64
	out := f.svc.Issue(context.Background(), domain.IssueRequest{
		Deal:        f.loadDeal(t, seeded),
		ExternalRef: "txn-hook",
		OnIssued: func(ctx context.Context, tx *gorm.DB, v *domain.Voucher) error {
			return tx.Raw(`SELECT COUNT(*) FROM vouchers WHERE id = ?`, v.ID).Scan(&seen).Error
		},
	})
	require.Equal(t, domain.IssueCreated, out.Kind)
	assert.EqualValues(t, 1, seen)
}

func TestIssueFallsBackToDefaultExpiration(t *testing.T) {
	f := newFixture(t)
	seeded := dbtest.SeedDeal(t, f.db, dbtest.DealFixture{ExpirationHours: -1})

	out := f.svc.Issue(context.Background(), domain.IssueRequest{Deal: f.loadDeal(t, seeded), ExternalRef: "txn-exp"})
	require.Equal(t, domain.IssueCreated, out.Kind)

	view, err := f.svc.Get(context.Background(), out.VoucherID)
	require.NoError(t, err)
	assert.True(t, view.ExpiresAt.Equal(testNow.Add(720*time.Hour)))
}

func TestIssueRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)

	out := f.svc.Issue(context.Background(), domain.IssueRequest{ExternalRef: "x"})
	assert.Equal(t, domain.IssueRejected, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrInvalidIssueRequest)
}

func TestNewQRTokenIsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		token, err := NewQRToken()
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}
