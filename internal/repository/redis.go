package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the shared client with the configured key prefix.
type RedisClient struct {
	Client *redis.Client
	prefix string
}

func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return WrapRedis(rdb, cfg.KeyPrefix), nil
}

// WrapRedis adopts an existing client, mainly for tests.
func WrapRedis(rdb *redis.Client, prefix string) *RedisClient {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "apiaudit"
	}
	return &RedisClient{Client: rdb, prefix: prefix}
}

func (r *RedisClient) key(parts ...string) string {
	return r.prefix + ":" + strings.Join(parts, ":")
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}
