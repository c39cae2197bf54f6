package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/restyleworks/restyle/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the redis client and the shared token bucket. Both are
// nil when REDIS_ADDR is unset; callers treat a nil bucket as allow-all.
var Module = fx.Module("ratelimit",
	fx.Provide(
		func(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
			if cfg.RedisAddr == "" {
				log.Warn("redis not configured, rate limiting disabled")
				return nil
			}
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					return client.Close()
				},
			})
			return client
		},
		NewTokenBucket,
	),
)
