package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces limiter keys so they can share a Redis database
// with the history store.
const keyPrefix = "ragchat:ratelimit:"

// RedisLimiter implements fixed-window rate limiting over Redis, so a
// budget holds across processes. Each key gets a counter that expires at
// the end of its window; requests past the budget are rejected until the
// counter expires.
type RedisLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
	logger   *slog.Logger
}

// NewRedis creates a limiter allowing requests per window for each key.
// The caller owns the client lifecycle; the same client may be shared with
// the history store.
func NewRedis(client *redis.Client, requests int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client:   client,
		requests: requests,
		window:   window,
		logger:   logger,
	}
}

// Check increments the window counter for key and reports the decision.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	redisKey := keyPrefix + key

	// INCR + ExpireNX + PTTL in one round trip. ExpireNX arms the window
	// only on the first increment; PTTL then reports time to window end.
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check rate limit for %s: %w", key, err)
	}

	count := incr.Val()
	now := time.Now()

	remainingWindow := pttl.Val()
	if remainingWindow < 0 {
		// Counter somehow has no TTL; assume a fresh window
		remainingWindow = l.window
	}

	remaining := l.requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	allowed := count <= int64(l.requests)
	reset := now
	if !allowed {
		reset = now.Add(remainingWindow)
		l.logger.Debug("rate limit exceeded", "key", key, "retry_at", reset)
	}

	return Decision{
		Allowed:   allowed,
		Limit:     l.requests,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}
