package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	obscontext "github.com/smallbiznis/vouchr/internal/observability/context"
	"github.com/smallbiznis/vouchr/internal/session"
	voucherdomain "github.com/smallbiznis/vouchr/internal/voucher/domain"
)

type redeemRequest struct {
	QRToken string `json:"qrToken"`
}

type redeemResponse struct {
	Redeemed   bool       `json:"redeemed"`
	VoucherID  string     `json:"voucherId,omitempty"`
	RedeemedAt *time.Time `json:"redeemedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

const reasonRateLimited voucherdomain.Reason = "RateLimited"

// Redeem burns a voucher for the business in the session.
func (s *Server) Redeem(c *gin.Context) {
	principal, ok := session.PrincipalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body redeemRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.QRToken) == "" {
		abortRedeem(c, ErrInvalidRequest)
		return
	}

	actorType := auditdomain.ActorTypeVendor
	if principal.IsAdmin() {
		actorType = auditdomain.ActorTypeAdmin
	}

	result, err := s.voucherSvc.Redeem(c.Request.Context(), voucherdomain.RedeemRequest{
		QRToken:    strings.TrimSpace(body.QRToken),
		BusinessID: principal.BusinessID,
		ActorType:  actorType,
		ActorID:    principal.Subject,
	})
	if err != nil {
		abortRedeem(c, err)
		return
	}
	tagRequest(c, ContextVoucherIDKey, obscontext.WithVoucherID, result.VoucherID.String())

	redeemedAt := result.RedeemedAt.UTC()
	c.JSON(http.StatusOK, redeemResponse{
		Redeemed:   true,
		VoucherID:  result.VoucherID.String(),
		RedeemedAt: &redeemedAt,
	})
}

func abortRedeem(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		status int
		reason voucherdomain.Reason
	)
	rej, isRejection := voucherdomain.AsRejection(err)
	switch {
	case isRejection:
		reason = rej.Reason
		status = rejectionStatus(reason)
	case errors.Is(err, ErrRateLimited):
		reason = reasonRateLimited
		status = http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidRequest):
		reason = reasonInvalidRequest
		status = http.StatusBadRequest
	default:
		reason = voucherdomain.ReasonTransactionError
		status = http.StatusServiceUnavailable
	}

	c.AbortWithStatusJSON(status, redeemResponse{Error: string(reason)})
}
