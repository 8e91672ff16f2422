package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 5 * time.Minute
	staleThreshold  = 10 * time.Minute
)

// Local implements per-key rate limiting using golang.org/x/time/rate.
// Each key gets a token bucket holding the full budget, refilled evenly
// across the window. Cleanup of stale entries happens inline during Check.
//
// Local is safe for concurrent use by multiple goroutines.
type Local struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
	logger      *slog.Logger

	// now is replaceable in tests to exercise refill without sleeping.
	now func() time.Time
}

// bucket holds a rate limiter and last-seen time for a single key.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocal creates a limiter allowing requests per window for each key.
// A burst of the full budget is available immediately.
func NewLocal(requests int, window time.Duration, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		buckets:     make(map[string]*bucket),
		limit:       rate.Limit(float64(requests) / window.Seconds()),
		burst:       requests,
		lastCleanup: time.Now(),
		logger:      logger,
		now:         time.Now,
	}
}

// Check consumes one token for key and reports the decision. It never
// returns an error; the error return exists to satisfy the limiter
// contract shared with RedisLimiter.
func (l *Local) Check(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Periodic cleanup of stale entries
	if now.Sub(l.lastCleanup) > cleanupInterval {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > staleThreshold {
				delete(l.buckets, k)
			}
		}
		l.lastCleanup = now
	}

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}

	reset := now
	if !allowed {
		// Time until one full token refills
		wait := time.Duration(math.Ceil((1 - tokens) / float64(l.limit) * float64(time.Second)))
		reset = now.Add(wait)
		l.logger.Debug("rate limit exceeded", "key", key, "retry_at", reset)
	}

	return Decision{
		Allowed:   allowed,
		Limit:     l.burst,
		Remaining: int(tokens),
		Reset:     reset,
	}, nil
}
