package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/vouchr/internal/config"
	deliverydomain "github.com/smallbiznis/vouchr/internal/delivery/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		NewTokenBucket,
		NewLocker,
		NewRedeemLimiter,
		ProvideDeliveryLocker,
	),
)

// NewRedisClient returns nil when rate limiting is disabled; every consumer
// treats a nil client as "feature off".
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) (*redis.Client, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return client, nil
}

// ProvideDeliveryLocker exposes the redis locker to the delivery workers,
// or a nil interface when redis is not configured.
func ProvideDeliveryLocker(locker *Locker) deliverydomain.Locker {
	if locker == nil {
		return nil
	}
	return locker
}
