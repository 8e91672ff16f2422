// Package ratelimit bounds how many chat requests a rate-limit session key
// may issue. Two limiters are provided: Local keeps per-key token buckets in
// process memory, RedisLimiter counts fixed windows in Redis so several
// processes can share one budget.
package ratelimit

import "time"

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Limit is the configured request budget.
	Limit int
	// Remaining is how many requests are left in the current budget.
	Remaining int
	// Reset is when the next request would be permitted. For allowed
	// requests it is the check time itself.
	Reset time.Time
}
