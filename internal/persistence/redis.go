package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/config"
)

const redisConnectTimeout = 3 * time.Second

var errRedisDisabled = errors.New("redis client not configured")

// Redis holds the shared client used by the event queue and token revocations.
// Available reports whether the startup ping succeeded; callers fall back to
// in-process implementations when it did not.
type Redis struct {
	Client    *redis.Client
	Available bool
}

// NewRedis builds the client and probes it once within a short deadline.
// An unreachable server is not an error here.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Info("redis disabled")
		return &Redis{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-memory fallbacks", zap.String("addr", cfg.Addr), zap.Error(err))
		return &Redis{Client: client}
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Redis{Client: client, Available: true}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping is the readiness probe for the redis dependency.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errRedisDisabled
	}
	return r.Client.Ping(ctx).Err()
}
