package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/inkpress/coord/pkg/logger"
)

// FallbackStore sends every call to primary and, when primary fails for any
// reason, to secondary instead. Rate limiting is protective, so a cache
// outage must never turn into failed requests.
//
// The switch is logged once when it happens and once when primary answers
// again. While degraded, limits are enforced per instance only.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    *slog.Logger
	degraded  atomic.Bool
}

// NewFallbackStore wraps primary with secondary.
func NewFallbackStore(primary, secondary Store, log *slog.Logger) *FallbackStore {
	if log == nil {
		log = slog.Default()
	}
	return &FallbackStore{primary: primary, secondary: secondary, logger: log}
}

// Degraded reports whether the last call was served by the secondary store.
func (s *FallbackStore) Degraded() bool {
	return s.degraded.Load()
}

func (s *FallbackStore) observe(ctx context.Context, err error) bool {
	if err == nil {
		if s.degraded.CompareAndSwap(true, false) {
			s.logger.LogAttrs(ctx, slog.LevelInfo, "rate limiter back on shared store")
		}
		return true
	}
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.LogAttrs(ctx, slog.LevelWarn,
			"rate limiter falling back to in-memory store, limits are per-instance until the cache recovers",
			logger.Error(err),
		)
	}
	return false
}

func (s *FallbackStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, ttl, err := s.primary.Increment(ctx, key, window)
	if s.observe(ctx, err) {
		return count, ttl, nil
	}
	return s.secondary.Increment(ctx, key, window)
}

func (s *FallbackStore) Reset(ctx context.Context, key string) error {
	err := s.primary.Reset(ctx, key)
	s.observe(ctx, err)
	// Both stores may hold a counter for key after a failover.
	return s.secondary.Reset(ctx, key)
}

func (s *FallbackStore) RecordSuspicious(ctx context.Context, key string, at time.Time, retention time.Duration) (SuspiciousRecord, error) {
	rec, err := s.primary.RecordSuspicious(ctx, key, at, retention)
	if s.observe(ctx, err) {
		return rec, nil
	}
	return s.secondary.RecordSuspicious(ctx, key, at, retention)
}

func (s *FallbackStore) Suspicious(ctx context.Context, key string) (SuspiciousRecord, bool, error) {
	rec, ok, err := s.primary.Suspicious(ctx, key)
	if s.observe(ctx, err) {
		return rec, ok, nil
	}
	return s.secondary.Suspicious(ctx, key)
}
