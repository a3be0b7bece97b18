package ratelimit

import (
	"context"
	"time"

	"github.com/inkpress/coord/pkg/cache"
)

// MemoryStore keeps counters in process memory. Limits enforced through it
// hold for this instance only; with several instances behind a load balancer
// each one counts separately.
type MemoryStore struct {
	counters   *cache.ExpiringCache[string, int64]
	suspicious *cache.ExpiringCache[string, SuspiciousRecord]
}

// NewMemoryStore creates a store whose expired entries are swept every
// sweepInterval. Call Close to stop the sweeper.
func NewMemoryStore(sweepInterval time.Duration, opts ...cache.ExpiringOption) *MemoryStore {
	opts = append([]cache.ExpiringOption{cache.WithSweepInterval(sweepInterval)}, opts...)
	return &MemoryStore{
		counters:   cache.NewExpiringCache[string, int64](opts...),
		suspicious: cache.NewExpiringCache[string, SuspiciousRecord](opts...),
	}
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, ttl := s.counters.Update(key, window, func(cur int64, _ bool) int64 {
		return cur + 1
	})
	return count, ttl, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.counters.Delete(key)
	return nil
}

// RecordSuspicious bumps the record and restarts its retention.
func (s *MemoryStore) RecordSuspicious(_ context.Context, key string, at time.Time, retention time.Duration) (SuspiciousRecord, error) {
	rec, _ := s.suspicious.Update(key, retention, func(cur SuspiciousRecord, _ bool) SuspiciousRecord {
		cur.Count++
		cur.LastSeen = at
		return cur
	})
	s.suspicious.Set(key, rec, retention)
	return rec, nil
}

func (s *MemoryStore) Suspicious(_ context.Context, key string) (SuspiciousRecord, bool, error) {
	rec, _, ok := s.suspicious.Get(key)
	return rec, ok, nil
}

// Close stops the background sweep.
func (s *MemoryStore) Close() error {
	_ = s.counters.Close()
	return s.suspicious.Close()
}
