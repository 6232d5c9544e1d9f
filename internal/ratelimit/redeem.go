package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/vouchr/internal/config"
	obsmetrics "github.com/smallbiznis/vouchr/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyRedeemBusiness = "vouchr:redeem:business:%s"
	endpointRedeem    = "redeem"
)

// RedeemLimiter throttles redemption scans per business so a leaked
// session cannot be used to enumerate QR tokens.
type RedeemLimiter struct {
	bucket   *TokenBucket
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
	rate     float64
	burst    int
	failOpen bool
}

type RedeemLimiterParams struct {
	fx.In

	Cfg     config.Config
	Bucket  *TokenBucket        `optional:"true"`
	Log     *zap.Logger         `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// NewRedeemLimiter returns nil when rate limiting is disabled.
func NewRedeemLimiter(p RedeemLimiterParams) (*RedeemLimiter, error) {
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled || p.Bucket == nil {
		return nil, nil
	}
	if limitCfg.RedeemRate <= 0 || limitCfg.RedeemBurst <= 0 {
		return nil, errors.New("redeem rate limit must be positive")
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &RedeemLimiter{
		bucket:   p.Bucket,
		log:      log.Named("ratelimit.redeem"),
		metrics:  p.Metrics,
		rate:     limitCfg.RedeemRate,
		burst:    limitCfg.RedeemBurst,
		failOpen: limitCfg.FailOpen,
	}, nil
}

func (l *RedeemLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token from the business bucket. Storage errors are
// returned together with the fail-open or fail-closed decision.
func (l *RedeemLimiter) Allow(ctx context.Context, businessID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}

	key := fmt.Sprintf(keyRedeemBusiness, strings.TrimSpace(businessID))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("redeem rate limit unavailable",
			zap.String("business_id", businessID),
			zap.Bool("fail_open", l.failOpen),
			zap.Error(err),
		)
		if l.failOpen {
			l.metrics.RecordRateLimitAllowed(ctx, endpointRedeem)
			return &RateLimitResult{Allowed: true, Limit: l.burst}, err
		}
		l.metrics.RecordRateLimitDenied(ctx, endpointRedeem, "unavailable")
		return &RateLimitResult{Allowed: false, Limit: l.burst}, err
	}

	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, endpointRedeem)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, endpointRedeem, "exhausted")
	}
	return res, nil
}
