package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/vouchr/internal/observability/logger"
	"github.com/smallbiznis/vouchr/internal/session"
	"go.uber.org/zap"
)

// Gin keys read by the request logger and tracing middleware.
const (
	ContextDealIDKey    = "deal_id"
	ContextVoucherIDKey = "voucher_id"
)

// tagRequest records a correlation id on both the gin context and the
// request context so service logs carry it too.
func tagRequest(c *gin.Context, key string, with func(context.Context, string) context.Context, value string) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return
	}
	c.Set(key, value)
	c.Request = c.Request.WithContext(with(c.Request.Context(), value))
}

// RedeemRateLimit throttles redemption scans per business. It must run
// after session authentication.
func (s *Server) RedeemRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.redeemLimiter.Enabled() {
			c.Next()
			return
		}

		principal, ok := session.PrincipalFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		res, err := s.redeemLimiter.Allow(ctx, principal.BusinessID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("redeem rate limit check failed", zap.Error(err))
		}
		if res == nil || !res.Allowed {
			retryAfter := time.Second
			if res != nil && res.RetryAfter > retryAfter {
				retryAfter = res.RetryAfter
			}
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
			abortRedeem(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
