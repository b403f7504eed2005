package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, 5*time.Minute), mr
}

func TestCaches(t *testing.T) {
	redisCache, _ := newTestRedisCache(t)
	caches := map[string]Cache{
		"memory": NewMemoryCache(16, 5*time.Minute),
		"redis":  redisCache,
	}

	for name, cache := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			set := NewPermissionSet(perm("sales.view", 7, ActionGrant(ActionView)))

			_, ok, err := cache.Get(ctx, snowflake.ID(1))
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, cache.Set(ctx, 1, set))
			require.NoError(t, cache.Set(ctx, 2, set))

			got, ok, err := cache.Get(ctx, 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, got.HasAction("sales.view", ActionView))
			assert.False(t, got.HasAction("sales.view", ActionDelete))

			require.NoError(t, cache.Delete(ctx, 1))
			_, ok, _ = cache.Get(ctx, 1)
			assert.False(t, ok)
			_, ok, _ = cache.Get(ctx, 2)
			assert.True(t, ok)

			require.NoError(t, cache.Purge(ctx))
			_, ok, _ = cache.Get(ctx, 2)
			assert.False(t, ok)
		})
	}
}

func TestRedisCacheEntriesCarryMaxAge(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 5, NewPermissionSet(perm("reports.view", 1, FullGrant()))))
	assert.Equal(t, 5*time.Minute, mr.TTL(redisKey(5)))

	mr.FastForward(5 * time.Minute)
	_, ok, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisPurgeLeavesForeignKeys(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("other:key", "1"))
	require.NoError(t, cache.Set(ctx, 9, NewPermissionSet()))
	require.NoError(t, cache.Purge(ctx))

	assert.True(t, mr.Exists("other:key"))
	assert.False(t, mr.Exists(redisKey(9)))
}
