package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBucketRefills(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bucket := NewMemoryBucket(clk, 16, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, "k", 1, 2)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := bucket.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	clk.Advance(time.Second)
	res, err = bucket.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryBucketRejectsInvalidArguments(t *testing.T) {
	bucket := NewMemoryBucket(clock.SystemClock{}, 0, 0)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)
}

func TestRedisBucketDrains(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket := NewRedisBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "login:k", 0.01, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := bucket.Allow(ctx, "login:k", 0.01, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
	assert.True(t, mr.Exists("login:k"))
}

func TestLoginLimiterKeysByClientAndEmail(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewLoginLimiter(NewMemoryBucket(clk, 16, time.Hour), config.LoginRateLimitConfig{PerMinute: 1, Burst: 1})
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "10.0.0.1", "Owner@Example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "10.0.0.1", "owner@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.Allow(ctx, "10.0.0.2", "owner@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilLoginLimiterAdmits(t *testing.T) {
	var limiter *LoginLimiter
	res, err := limiter.Allow(context.Background(), "10.0.0.1", "a@b.c")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
