// internal/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
)

// NewRedisClient connects to REDIS_URL. A blank url returns nil, which
// disables the webhook dedupe cache.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// Fall back to a bare host:port address
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)
	if err := RedisHealthCheck(client); err != nil {
		client.Close()
		return nil, err
	}

	logrus.WithField("addr", opts.Addr).Info("Redis connection established successfully")
	return client, nil
}

// RedisHealthCheck pings redis with a short deadline.
func RedisHealthCheck(client redis.Cmdable) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
