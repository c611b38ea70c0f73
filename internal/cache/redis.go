package cache

import (
	"context"
	"time"

	"raceroom/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Redis backs the snapshot cache with a shared Redis instance.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (r *Redis) GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func() (string, error)) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err == nil {
		metrics.SnapshotCacheHits.Inc()
		return value, nil
	}
	if err != redis.Nil {
		return "", err
	}
	metrics.SnapshotCacheMisses.Inc()

	value, err = compute()
	if err != nil {
		return "", err
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return "", err
	}
	return value, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
