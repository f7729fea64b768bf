package cache

import (
	"context"
	"fmt"
	"time"

	"paintball-ticketing/internal/config"
	"paintball-ticketing/internal/logger"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects and pings. A failed ping still returns the client so the
// caller can run degraded and let go-redis reconnect later.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis at %s unavailable, continuing without cache: %v", cfg.Addr, err))
		return client, err
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}
