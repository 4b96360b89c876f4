package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCooldownStore keeps the last alert timestamp shared by all instances.
type RedisCooldownStore struct {
	client *RedisClient
}

func NewRedisCooldownStore(client *RedisClient) *RedisCooldownStore {
	return &RedisCooldownStore{client: client}
}

func (s *RedisCooldownStore) LastAlert(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.client.Client.Get(ctx, s.client.key("alert", "last_sent")).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *RedisCooldownStore) SetLastAlert(ctx context.Context, t time.Time) error {
	return s.client.Client.Set(ctx, s.client.key("alert", "last_sent"), t.UTC().Format(time.RFC3339Nano), 0).Err()
}
