package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
	callbackdomain "github.com/smallbiznis/vouchr/internal/callback/domain"
	obscontext "github.com/smallbiznis/vouchr/internal/observability/context"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
)

type paymentCallbackRequest struct {
	DealID                string          `json:"dealId"`
	ExternalTransactionID string          `json:"externalTransactionId"`
	AmountPaid            json.Number     `json:"amountPaid"`
	Currency              string          `json:"currency"`
	PaymentStatus         string          `json:"paymentStatus"`
	CustomerReference     string          `json:"customerReference"`
	CallbackSignature     string          `json:"callbackSignature"`
	CallbackTimestamp     json.Number     `json:"callbackTimestamp"`
	CallbackPayload       json.RawMessage `json:"callbackPayload,omitempty"`
}

type paymentCallbackResponse struct {
	Success    bool   `json:"success"`
	VoucherID  string `json:"voucherId,omitempty"`
	Message    string `json:"message,omitempty"`
	Idempotent bool   `json:"idempotent"`
}

type paymentCallbackErrorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

var callbackMessages = map[voucherdomain.Reason]string{
	reasonInvalidRequest:                     "Malformed callback body",
	voucherdomain.ReasonSignatureInvalid:     "Callback signature could not be verified",
	voucherdomain.ReasonReplayWindowExceeded: "Callback timestamp is outside the accepted window",
	voucherdomain.ReasonDealNotFound:         "Deal not found",
	voucherdomain.ReasonDealNotActive:        "Deal is not active",
	voucherdomain.ReasonBusinessNotActive:    "Business is not active",
	voucherdomain.ReasonSubscriptionInactive: "Business subscription is not active",
	voucherdomain.ReasonPaymentNotConfirmed:  "Payment is not confirmed",
	voucherdomain.ReasonDealSoldOut:          "Deal has no vouchers left",
	voucherdomain.ReasonAmountMismatch:       "Amount paid does not match the deal price",
	voucherdomain.ReasonTransactionError:     "Voucher could not be issued, retry later",
}

// PaymentCallback accepts a signed payment confirmation and issues at most
// one voucher per (dealId, externalTransactionId).
func (s *Server) PaymentCallback(c *gin.Context) {
	var body paymentCallbackRequest
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		s.rejectMalformed(c, fmt.Errorf("decode body: %w", err))
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(body.AmountPaid.String()))
	if err != nil {
		s.rejectMalformed(c, fmt.Errorf("amountPaid: %w", err))
		return
	}
	var timestamp int64
	if raw := strings.TrimSpace(body.CallbackTimestamp.String()); raw != "" {
		timestamp, err = body.CallbackTimestamp.Int64()
		if err != nil {
			s.rejectMalformed(c, fmt.Errorf("callbackTimestamp: %w", err))
			return
		}
	}

	tagRequest(c, ContextDealIDKey, obscontext.WithDealID, body.DealID)

	result, err := s.callbackSvc.HandleCallback(c.Request.Context(), callbackdomain.CallbackRequest{
		DealID:                body.DealID,
		ExternalTransactionID: body.ExternalTransactionID,
		AmountPaid:            amount,
		Currency:              body.Currency,
		PaymentStatus:         body.PaymentStatus,
		CustomerReference:     body.CustomerReference,
		Signature:             body.CallbackSignature,
		Timestamp:             timestamp,
		Payload:               body.CallbackPayload,
	})
	if err != nil {
		abortCallback(c, err)
		return
	}
	tagRequest(c, ContextVoucherIDKey, obscontext.WithVoucherID, result.VoucherID.String())

	c.JSON(http.StatusOK, paymentCallbackResponse{
		Success:    true,
		VoucherID:  result.VoucherID.String(),
		Message:    result.Message,
		Idempotent: result.Idempotent,
	})
}

// rejectMalformed records the undecodable body before answering 400.
func (s *Server) rejectMalformed(c *gin.Context, cause error) {
	var raw []byte
	if cached, ok := c.Get(gin.BodyBytesKey); ok {
		raw, _ = cached.([]byte)
	}
	err := fmt.Errorf("%w: %w", callbackdomain.ErrInvalidRequest, cause)
	s.callbackSvc.RecordMalformed(c.Request.Context(), raw, err)
	abortCallback(c, err)
}

func abortCallback(c *gin.Context, err error) {
	_ = c.Error(err)

	reason := voucherdomain.ReasonTransactionError
	switch rej, ok := voucherdomain.AsRejection(err); {
	case ok:
		reason = rej.Reason
	case errors.Is(err, callbackdomain.ErrInvalidRequest):
		reason = reasonInvalidRequest
	}

	resp := paymentCallbackErrorResponse{
		Error:   string(reason),
		Message: callbackMessages[reason],
	}
	if category := reason.Category(); category != reason {
		resp.Category = string(category)
	}
	c.AbortWithStatusJSON(rejectionStatus(reason), resp)
}
