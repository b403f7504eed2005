package authorization

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/backoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("authorization",
	fx.Provide(newCache),
	fx.Provide(NewResolver),
	fx.Provide(func(r *Resolver) Invalidator { return r }),
	fx.Provide(func(r *Resolver) PermissionSource { return r }),
	fx.Provide(NewEnforcer),
)

func newCache(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Cache, error) {
	if cfg.PermissionCache.Backend != config.PermissionCacheRedis {
		return NewMemoryCache(cfg.PermissionCache.Size, cfg.PermissionCache.MaxAge), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.PermissionCache.RedisAddr,
		Password: cfg.PermissionCache.RedisPassword,
		DB:       cfg.PermissionCache.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return err
			}
			log.Info("permission cache connected", zap.String("addr", cfg.PermissionCache.RedisAddr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewRedisCache(client, cfg.PermissionCache.MaxAge), nil
}
