package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/ratelimit"
	"github.com/smallbiznis/vouchr/internal/session"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemSuccess(t *testing.T) {
	f := newFixture(t)
	f.vouchers.redeem = &voucherdomain.RedeemResult{VoucherID: snowflake.ID(77), RedeemedAt: testNow}

	w := f.do(t, http.MethodPost, "/redeem", f.token(t, 500, session.RoleVendor), map[string]string{"qrToken": " tok "})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["redeemed"])
	assert.Equal(t, "77", body["voucherId"])
	assert.Equal(t, "2026-03-02T12:00:00Z", body["redeemedAt"])
	assert.NotContains(t, body, "error")

	req := f.vouchers.redeemReq
	assert.Equal(t, "tok", req.QRToken)
	assert.Equal(t, snowflake.ID(500), req.BusinessID)
	assert.Equal(t, auditdomain.ActorTypeVendor, req.ActorType)
	assert.Equal(t, "staff-1", req.ActorID)
}

func TestRedeemAsAdminRecordsAdminActor(t *testing.T) {
	f := newFixture(t)
	f.vouchers.redeem = &voucherdomain.RedeemResult{VoucherID: 1, RedeemedAt: testNow}

	w := f.do(t, http.MethodPost, "/redeem", f.token(t, 500, session.RoleAdmin), map[string]string{"qrToken": "tok"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, auditdomain.ActorTypeAdmin, f.vouchers.redeemReq.ActorType)
}

func TestRedeemRejections(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{err: voucherdomain.ErrVoucherNotFound, status: http.StatusNotFound, code: "NotFound"},
		{err: voucherdomain.ErrWrongBusiness, status: http.StatusForbidden, code: "WrongBusiness"},
		{err: voucherdomain.ErrAlreadyRedeemed, status: http.StatusConflict, code: "AlreadyRedeemed"},
		{err: voucherdomain.ErrExpired, status: http.StatusGone, code: "Expired"},
		{err: voucherdomain.Reject(voucherdomain.ReasonNotRedeemableNow, "closed"), status: http.StatusUnprocessableEntity, code: "NotRedeemableNow"},
		{err: assert.AnError, status: http.StatusServiceUnavailable, code: "TransactionError"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			f := newFixture(t)
			f.vouchers.redeemErr = tc.err

			w := f.do(t, http.MethodPost, "/redeem", f.token(t, 500, session.RoleVendor), map[string]string{"qrToken": "tok"})
			assert.Equal(t, tc.status, w.Code)

			body := decode(t, w)
			assert.Equal(t, false, body["redeemed"])
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestRedeemRequiresSession(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/redeem", "", map[string]string{"qrToken": "tok"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/redeem", "not-a-jwt", map[string]string{"qrToken": "tok"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRedeemMissingToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/redeem", f.token(t, 500, session.RoleVendor), map[string]string{"qrToken": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidRequest", decode(t, w)["error"])
}

func TestRedeemRateLimitFailClosed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	limiter, err := ratelimit.NewRedeemLimiter(ratelimit.RedeemLimiterParams{
		Cfg: config.Config{RateLimit: config.RateLimitConfig{
			Enabled:     true,
			RedeemRate:  1,
			RedeemBurst: 1,
			FailOpen:    false,
		}},
		Bucket: ratelimit.NewTokenBucket(client),
	})
	require.NoError(t, err)

	f := newFixture(t, func(p *ServerParams) { p.RedeemLimiter = limiter })
	f.vouchers.redeem = &voucherdomain.RedeemResult{VoucherID: 1, RedeemedAt: testNow}

	w := f.do(t, http.MethodPost, "/redeem", f.token(t, 500, session.RoleVendor), map[string]string{"qrToken": "tok"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "RateLimited", decode(t, w)["error"])
	assert.Empty(t, f.vouchers.redeemReq.QRToken)
}
