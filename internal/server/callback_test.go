package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	callbackdomain "github.com/smallbiznis/vouchr/internal/callback/domain"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callbackBody = `{
	"dealId": "1001",
	"externalTransactionId": "TX1",
	"amountPaid": 10.00,
	"currency": "USD",
	"paymentStatus": "completed",
	"customerReference": "buyer@example.com",
	"callbackSignature": "abc123",
	"callbackTimestamp": 1772452800,
	"callbackPayload": {"provider": "acme"}
}`

func TestPaymentCallbackIssued(t *testing.T) {
	f := newFixture(t)
	f.callback.result = &callbackdomain.CallbackResult{VoucherID: snowflake.ID(77), Message: "Voucher issued"}

	w := f.do(t, http.MethodPost, "/payment-callback", "", callbackBody)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "77", body["voucherId"])
	assert.Equal(t, false, body["idempotent"])

	require.Len(t, f.callback.got, 1)
	got := f.callback.got[0]
	assert.Equal(t, "1001", got.DealID)
	assert.Equal(t, "TX1", got.ExternalTransactionID)
	assert.Equal(t, "10", got.AmountPaid.String())
	assert.Equal(t, int64(1772452800), got.Timestamp)
	assert.Equal(t, "abc123", got.Signature)
	assert.JSONEq(t, `{"provider": "acme"}`, string(got.Payload))
}

func TestPaymentCallbackIdempotent(t *testing.T) {
	f := newFixture(t)
	f.callback.result = &callbackdomain.CallbackResult{
		VoucherID:  snowflake.ID(77),
		Idempotent: true,
		Message:    "Voucher already issued for this transaction",
	}

	w := f.do(t, http.MethodPost, "/payment-callback", "", callbackBody)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["idempotent"])
	assert.Equal(t, "Voucher already issued for this transaction", body["message"])
}

func TestPaymentCallbackKeepsAmountPrecision(t *testing.T) {
	f := newFixture(t)
	f.callback.result = &callbackdomain.CallbackResult{VoucherID: 1}

	w := f.do(t, http.MethodPost, "/payment-callback", "", `{"dealId":"1","externalTransactionId":"x","amountPaid":"19.999","currency":"USD","paymentStatus":"paid","callbackTimestamp":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "19.999", f.callback.got[0].AmountPaid.String())
}

func TestPaymentCallbackRejections(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		code     string
		category string
	}{
		{err: voucherdomain.ErrSignatureInvalid, status: http.StatusUnauthorized, code: "SignatureInvalid"},
		{err: voucherdomain.ErrReplayWindowExceeded, status: http.StatusUnauthorized, code: "ReplayWindowExceeded"},
		{err: voucherdomain.ErrDealNotFound, status: http.StatusNotFound, code: "DealNotFound", category: "DealNotEligible"},
		{err: voucherdomain.ErrDealNotActive, status: http.StatusUnprocessableEntity, code: "DealNotActive", category: "DealNotEligible"},
		{err: voucherdomain.ErrSubscriptionInactive, status: http.StatusUnprocessableEntity, code: "SubscriptionInactive", category: "DealNotEligible"},
		{err: voucherdomain.ErrDealSoldOut, status: http.StatusUnprocessableEntity, code: "DealSoldOut", category: "DealNotEligible"},
		{err: voucherdomain.Reject(voucherdomain.ReasonAmountMismatch, "paid 9.00"), status: http.StatusUnprocessableEntity, code: "AmountMismatch"},
		{err: fmt.Errorf("%w: %w", voucherdomain.ErrTransactionError, fmt.Errorf("db down")), status: http.StatusServiceUnavailable, code: "TransactionError"},
		{err: fmt.Errorf("%w: missing dealId", callbackdomain.ErrInvalidRequest), status: http.StatusBadRequest, code: "InvalidRequest"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			f := newFixture(t)
			f.callback.err = tc.err

			w := f.do(t, http.MethodPost, "/payment-callback", "", callbackBody)
			assert.Equal(t, tc.status, w.Code)

			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.code, body["error"])
			assert.NotEmpty(t, body["message"])
			if tc.category == "" {
				assert.NotContains(t, body, "category")
			} else {
				assert.Equal(t, tc.category, body["category"])
			}
		})
	}
}

func TestPaymentCallbackMalformedBody(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":           `{`,
		"numeric deal id":    `{"dealId": 1001, "amountPaid": 10}`,
		"missing amount":     `{"dealId": "1001"}`,
		"fraction timestamp": `{"dealId": "1001", "amountPaid": 10, "callbackTimestamp": 1.5}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, http.MethodPost, "/payment-callback", "", raw)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "InvalidRequest", decode(t, w)["error"])
			assert.Empty(t, f.callback.got)

			require.Len(t, f.callback.malformed, 1)
			assert.Equal(t, raw, string(f.callback.malformed[0]))
			assert.ErrorIs(t, f.callback.causes[0], callbackdomain.ErrInvalidRequest)
		})
	}
}
