// Package ratelimit limits login attempts per IP using Redis INCR+EXPIRE,
// adapted directly from the teacher's internal login rate limiter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter limits login attempts per IP.
type Limiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

// New creates a rate limiter. maxAttempt is the max failed attempts allowed
// per IP within the given window.
func New(rdb *redis.Client, maxAttempt int, window time.Duration) *Limiter {
	return &Limiter{
		redis:      rdb,
		maxAttempt: maxAttempt,
		window:     window,
	}
}

// Result holds the result of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Check returns whether the given IP is allowed to attempt a login.
func (l *Limiter) Check(ctx context.Context, ip string) (*Result, error) {
	key := fmt.Sprintf("login_ratelimit:%s", ip)

	count, err := l.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= l.maxAttempt {
		ttl, err := l.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("getting TTL: %w", err)
		}
		return &Result{
			Allowed:   false,
			Remaining: 0,
			RetryAt:   time.Now().Add(ttl),
		}, nil
	}

	return &Result{
		Allowed:   true,
		Remaining: l.maxAttempt - count,
	}, nil
}

// Record records a failed login attempt for the given IP.
func (l *Limiter) Record(ctx context.Context, ip string) error {
	key := fmt.Sprintf("login_ratelimit:%s", ip)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording rate limit: %w", err)
	}

	if incr.Val() == 1 {
		l.redis.Expire(ctx, key, l.window)
	}

	return nil
}

// Reset clears the rate limit counter for a given IP, on successful login.
func (l *Limiter) Reset(ctx context.Context, ip string) error {
	key := fmt.Sprintf("login_ratelimit:%s", ip)
	return l.redis.Del(ctx, key).Err()
}
