package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/sentra/internal/clock"
	"github.com/smallbiznis/sentra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(ProvideClient),
	fx.Provide(ProvideStore),
	fx.Provide(New),
)

// ProvideClient opens the shared Redis connection, or returns nil when no
// address is configured.
func ProvideClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// An unreachable Redis at boot is degraded service,
				// not a startup failure: the limiter fails open.
				log.Warn("redis unreachable at startup", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// ProvideStore prefers Redis when configured and falls back to the in-process
// store for single-node deployments.
func ProvideStore(client *redis.Client, clk clock.Clock) CounterStore {
	if client != nil {
		return NewRedisStore(client)
	}
	return NewMemoryStore(clk)
}
