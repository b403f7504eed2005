package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Bucket admits one unit of work per call for the given key.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

// RedisBucket keeps bucket state in redis so every instance shares it.
type RedisBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisBucket(client *redis.Client) *RedisBucket {
	return &RedisBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (b *RedisBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if err := validate(key, rate, burst); err != nil {
		return Result{}, err
	}

	res, err := b.script.Run(ctx, b.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("invalid_token_bucket_response")
	}

	allowed, _ := res[0].(int64)
	raw, _ := res[1].(string)
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Result{}, err
	}
	return result(allowed == 1, tokens, rate), nil
}

func validate(key string, rate float64, burst int) error {
	if key == "" {
		return errors.New("rate_limit_key_empty")
	}
	if rate <= 0 || burst <= 0 {
		return errors.New("rate_limit_must_be_positive")
	}
	return nil
}

func result(allowed bool, tokens, rate float64) Result {
	out := Result{Allowed: allowed, Remaining: int(tokens)}
	if !allowed {
		seconds := (1 - tokens) / rate
		out.RetryAfter = time.Duration(math.Ceil(seconds * float64(time.Second)))
	}
	return out
}

// bucketTTL is twice the time a drained bucket needs to refill.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
