package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nepse-observer/src/models"

	"github.com/zeromicro/go-zero/core/stores/redis"
)

// RedisCache implements interfaces.ICache on go-zero's redis client.
type RedisCache struct {
	client *redis.Redis
}

// NewRedisCache connects lazily. An unreachable server surfaces as errors on
// individual calls, which callers treat as degraded cache.
func NewRedisCache(host, pass string) (*RedisCache, error) {
	client, err := redis.NewRedis(redis.RedisConf{
		Host:     host,
		Type:     redis.NodeType,
		Pass:     pass,
		NonBlock: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", host, err)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Redis) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) HSet(ctx context.Context, key, field, value string) error {
	return c.client.HsetCtx(ctx, key, field, value)
}

func (c *RedisCache) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := c.client.HgetCtx(ctx, key, field)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HgetallCtx(ctx, key)
}

func (c *RedisCache) ZAdd(ctx context.Context, key string, score int64, member string) error {
	_, err := c.client.ZaddCtx(ctx, key, score, member)
	return err
}

func (c *RedisCache) ZLast(ctx context.Context, key string) (*models.MSeriesEntry, error) {
	pairs, err := c.client.ZrevrangeWithScoresCtx(ctx, key, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return &models.MSeriesEntry{Member: pairs[0].Key, Timestamp: pairs[0].Score}, nil
}

func (c *RedisCache) ZRange(ctx context.Context, key string) ([]models.MSeriesEntry, error) {
	pairs, err := c.client.ZrangeWithScoresCtx(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]models.MSeriesEntry, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, models.MSeriesEntry{Member: p.Key, Timestamp: p.Score})
	}
	return out, nil
}

func (c *RedisCache) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return c.client.ExpireatCtx(ctx, key, at.Unix())
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if !c.client.PingCtx(ctx) {
		return errors.New("redis ping failed")
	}
	return nil
}
