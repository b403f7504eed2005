package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/backoffice/internal/clock"
)

type bucketState struct {
	tokens float64
	ts     time.Time
}

// MemoryBucket is a per-process token bucket. Idle keys are evicted once
// a full refill has elapsed.
type MemoryBucket struct {
	mu      sync.Mutex
	clock   clock.Clock
	buckets *expirable.LRU[string, bucketState]
}

func NewMemoryBucket(clk clock.Clock, size int, idle time.Duration) *MemoryBucket {
	if size <= 0 {
		size = 10000
	}
	return &MemoryBucket{
		clock:   clk,
		buckets: expirable.NewLRU[string, bucketState](size, nil, idle),
	}
}

func (b *MemoryBucket) Allow(_ context.Context, key string, rate float64, burst int) (Result, error) {
	if err := validate(key, rate, burst); err != nil {
		return Result{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	state, ok := b.buckets.Get(key)
	if !ok {
		state = bucketState{tokens: float64(burst), ts: now}
	} else if elapsed := now.Sub(state.ts); elapsed > 0 {
		state.tokens = math.Min(float64(burst), state.tokens+elapsed.Seconds()*rate)
		state.ts = now
	}

	allowed := state.tokens >= 1
	if allowed {
		state.tokens--
	}
	b.buckets.Add(key, state)
	return result(allowed, state.tokens, rate), nil
}
