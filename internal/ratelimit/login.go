package ratelimit

import (
	"context"
	"strings"

	"github.com/smallbiznis/backoffice/internal/config"
)

const keyLogin = "backoffice:login:"

// LoginLimiter throttles credential attempts per client address and email.
// A nil limiter admits everything.
type LoginLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

func NewLoginLimiter(bucket Bucket, cfg config.LoginRateLimitConfig) *LoginLimiter {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &LoginLimiter{
		bucket: bucket,
		rate:   float64(perMinute) / 60,
		burst:  burst,
	}
}

func (l *LoginLimiter) Allow(ctx context.Context, clientIP, email string) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	key := keyLogin + strings.TrimSpace(clientIP) + ":" + strings.ToLower(strings.TrimSpace(email))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
