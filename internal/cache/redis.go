package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

// Cache wraps the Redis client with the key layouts used across the service.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Client() *redis.Client { return c.rdb }

// --- Refresh tokens ---

func (c *Cache) StoreRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, "refresh:"+token, userID, ttl).Err()
}

// ConsumeRefreshToken returns the owner of a refresh token and deletes it, so each
// token can only be exchanged once.
func (c *Cache) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	userID, err := c.rdb.GetDel(ctx, "refresh:"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return userID, err
}

func (c *Cache) DeleteRefreshToken(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, "refresh:"+token).Err()
}

// --- JWT blacklist ---

func (c *Cache) BlacklistToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, "blacklist:"+tokenID, "revoked", ttl).Err()
}

func (c *Cache) IsTokenBlacklisted(ctx context.Context, tokenID string) bool {
	exists, err := c.rdb.Exists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		log.Printf("⚠️ Blacklist check failed: %v", err)
		return false
	}
	return exists > 0
}

// --- Generic JSON cache ---

func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("⚠️ Dropping corrupted cache entry %s: %v", key, err)
		c.rdb.Del(ctx, key)
		return ErrMiss
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// DeletePattern removes every key matching a glob pattern.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// --- Rate limiting ---

// IncrementRateLimit bumps the counter for key and returns the new value. The
// window starts with the first hit.
func (c *Cache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
