package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"battrack/backend/internal/domain"
)

type RedisSyncReportCache struct {
	client *redis.Client
}

func NewRedisSyncReportCache(addr string, password string, db int) *RedisSyncReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSyncReportCache{client: client}
}

func (c *RedisSyncReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSyncReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisSyncReportCache) Get(ctx context.Context, key string) (*domain.SyncReport, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.SyncReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisSyncReportCache) Set(ctx context.Context, key string, value *domain.SyncReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
