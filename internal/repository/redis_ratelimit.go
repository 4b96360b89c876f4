package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
	"github.com/GoPolymarket/apiaudit/internal/pkg/clock"
)

// 计数器保留两个窗口，过期后由 redis 自动清理
const rateKeyTTL = 120 * time.Second

// RedisRateLimiter shares fixed-window counters across instances.
type RedisRateLimiter struct {
	client *RedisClient
	clock  clock.Clock
}

func NewRedisRateLimiter(client *RedisClient, c clock.Clock) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, clock: clock.OrReal(c)}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, user string, limit int) error {
	if limit <= 0 {
		return nil
	}
	window := l.clock.Now().Unix() / 60
	key := l.client.key("ratelimit", user, strconv.FormatInt(window, 10))

	pipe := l.client.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rateKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if incr.Val() > int64(limit) {
		return apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil)
	}
	return nil
}
