package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(newLoginLimiter),
)

func newLoginLimiter(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) *LoginLimiter {
	limitCfg := cfg.LoginRateLimit
	if !limitCfg.Enabled {
		log.Info("login rate limit disabled")
		return nil
	}

	if limitCfg.Backend != config.PermissionCacheRedis {
		return NewLoginLimiter(NewMemoryBucket(clk, 0, 10*time.Minute), limitCfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.PermissionCache.RedisAddr,
		Password: cfg.PermissionCache.RedisPassword,
		DB:       cfg.PermissionCache.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewLoginLimiter(NewRedisBucket(client), limitCfg)
}
