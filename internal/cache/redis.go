package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{
		client: client,
		margin: 2 * time.Minute,
	}
}

type RedisTokenCache struct {
	client *redis.Client
	// entries expire this long before the token itself
	margin time.Duration
}

func (r RedisTokenCache) Get(ctx context.Context, key string) (*Token, error) {
	data, err := r.client.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var token Token
	if err2 := json.Unmarshal(data, &token); err2 != nil {
		return nil, fmt.Errorf("unmarshal token failed: %w", err2)
	}

	return &token, nil
}

// Set stores the token until shortly before it expires. Tokens already inside that window
// are not stored.
func (r RedisTokenCache) Set(ctx context.Context, key string, token *Token) error {
	ttl := time.Until(token.ExpiresAt) - r.margin
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token failed: %w", err)
	}

	if err := r.client.Set(ctx, cacheKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisTokenCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(key string) string {
	return fmt.Sprintf("gateway:token:%s", key)
}
