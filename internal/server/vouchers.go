package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/vouchr/internal/audit/domain"
	"github.com/smallbiznis/vouchr/internal/session"
	"github.com/smallbiznis/vouchr/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Action    string `form:"action"`
}

// GetVoucher looks a voucher up by the QR token presented at the counter.
func (s *Server) GetVoucher(c *gin.Context) {
	principal, ok := session.PrincipalFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	token := strings.TrimSpace(c.Param("key"))
	if token == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	view, err := s.voucherSvc.GetByQRToken(c.Request.Context(), principal.BusinessID, token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) ListVoucherAuditLogs(c *gin.Context) {
	voucherID, ok := voucherIDParam(c)
	if !ok {
		return
	}

	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if _, err := s.voucherSvc.Get(c.Request.Context(), voucherID); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.ListByVoucher(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		VoucherID: voucherID,
		Action:    strings.TrimSpace(query.Action),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ResendVoucher(c *gin.Context) {
	voucherID, ok := voucherIDParam(c)
	if !ok {
		return
	}

	if err := s.delivery.Resend(c.Request.Context(), voucherID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true, "voucherId": voucherID.String()})
}

func voucherIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("key")))
	if err != nil || id <= 0 {
		AbortWithError(c, newValidationError("voucher_id", "invalid_voucher_id", "invalid voucher id"))
		return 0, false
	}
	return id, true
}
