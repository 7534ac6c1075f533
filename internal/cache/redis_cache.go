package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"posledger/internal/domain"
)

type RedisSchemeCache struct {
	client *redis.Client
}

func NewRedisSchemeCache(addr string, password string, db int) *RedisSchemeCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSchemeCache{client: client}
}

func (c *RedisSchemeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSchemeCache) Close() error {
	return c.client.Close()
}

func (c *RedisSchemeCache) Get(ctx context.Context, key string) ([]domain.DiscountScheme, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var schemes []domain.DiscountScheme
	if err := json.Unmarshal([]byte(val), &schemes); err != nil {
		return nil, false, err
	}
	return schemes, true, nil
}

func (c *RedisSchemeCache) Set(ctx context.Context, key string, schemes []domain.DiscountScheme, ttl time.Duration) error {
	if schemes == nil {
		return nil
	}
	payload, err := json.Marshal(schemes)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
