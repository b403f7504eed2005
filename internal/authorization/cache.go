package authorization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache stores resolved permission sets keyed by user.
type Cache interface {
	Get(ctx context.Context, userID snowflake.ID) (PermissionSet, bool, error)
	Set(ctx context.Context, userID snowflake.ID, set PermissionSet) error
	Delete(ctx context.Context, userIDs ...snowflake.ID) error
	Purge(ctx context.Context) error
}

// MemoryCache is a bounded in-process cache. Entries leave through
// eviction, invalidation or once maxAge has passed; a zero maxAge keeps
// them until evicted.
type MemoryCache struct {
	lru *expirable.LRU[snowflake.ID, PermissionSet]
}

func NewMemoryCache(size int, maxAge time.Duration) *MemoryCache {
	if size <= 0 {
		size = 4096
	}
	return &MemoryCache{lru: expirable.NewLRU[snowflake.ID, PermissionSet](size, nil, maxAge)}
}

func (c *MemoryCache) Get(_ context.Context, userID snowflake.ID) (PermissionSet, bool, error) {
	set, ok := c.lru.Get(userID)
	return set, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, userID snowflake.ID, set PermissionSet) error {
	c.lru.Add(userID, set)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, userIDs ...snowflake.ID) error {
	for _, id := range userIDs {
		c.lru.Remove(id)
	}
	return nil
}

func (c *MemoryCache) Purge(_ context.Context) error {
	c.lru.Purge()
	return nil
}

const redisKeyPrefix = "backoffice:perm:"

// RedisCache shares permission sets across instances. maxAge bounds how
// long an entry survives a delete that never reached redis.
type RedisCache struct {
	client *redis.Client
	maxAge time.Duration
}

func NewRedisCache(client *redis.Client, maxAge time.Duration) *RedisCache {
	return &RedisCache{client: client, maxAge: maxAge}
}

func redisKey(userID snowflake.ID) string {
	return redisKeyPrefix + userID.String()
}

func (c *RedisCache) Get(ctx context.Context, userID snowflake.ID) (PermissionSet, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PermissionSet{}, false, nil
	}
	if err != nil {
		return PermissionSet{}, false, err
	}
	var set PermissionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return PermissionSet{}, false, fmt.Errorf("decode cached permissions: %w", err)
	}
	return set, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID snowflake.ID, set PermissionSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(userID), raw, c.maxAge).Err()
}

func (c *RedisCache) Delete(ctx context.Context, userIDs ...snowflake.ID) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, redisKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
