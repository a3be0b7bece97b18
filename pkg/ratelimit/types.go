package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Count is the number of hits recorded in the current window,
	// including this one.
	Count int64
	// BackoffFactor is ceil(Count/Limit) capped at the rule's maximum when
	// progressive backoff is enabled and the limit is exceeded, 1 otherwise.
	BackoffFactor int
}

// RetryAfter returns how long a rejected client should wait: the time until
// the window resets, rounded up to whole seconds and multiplied by the
// backoff factor. Allowed results return 0.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	secs := math.Ceil(r.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	factor := max(r.BackoffFactor, 1)
	return time.Duration(secs) * time.Duration(factor) * time.Second
}

// SuspiciousRecord tracks how often an (IP, path) pair blew through its limit
// by more than the rule's suspicious factor.
type SuspiciousRecord struct {
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Store is the counter backend.
//
// Increment atomically adds one to key and returns the new count and the
// time left in the window. The window starts with the first hit: the expiry
// is set only when the key is created, or re-applied when found missing.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Reset(ctx context.Context, key string) error
	RecordSuspicious(ctx context.Context, key string, at time.Time, retention time.Duration) (SuspiciousRecord, error)
	Suspicious(ctx context.Context, key string) (SuspiciousRecord, bool, error)
}
