package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/inkpress/coord/pkg/redis"
)

// RedisStore keeps counters in the coordination cache so limits hold across
// all instances. It returns redis.ErrUnavailable while the cache is absent.
type RedisStore struct {
	cache redis.Provider
}

func NewRedisStore(cache redis.Provider) *RedisStore {
	return &RedisStore{cache: cache}
}

func (s *RedisStore) client(ctx context.Context) (goredis.UniversalClient, error) {
	c := s.cache.Get(ctx)
	if c == nil {
		return nil, redis.ErrUnavailable
	}
	return c, nil
}

// Increment runs INCR and PTTL in one round trip. The expiry is set when the
// key was just created, or when an earlier run died between INCR and
// PEXPIRE and left the key without one.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c, err := s.client(ctx)
	if err != nil {
		return 0, 0, err
	}

	var incr *goredis.IntCmd
	var pttl *goredis.DurationCmd
	if _, err := c.Pipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		pttl = p.PTTL(ctx, key)
		return nil
	}); err != nil {
		return 0, 0, s.cache.Report(ctx, err)
	}

	count, ttl := incr.Val(), pttl.Val()
	if count == 1 || ttl < 0 {
		if err := c.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, s.cache.Report(ctx, err)
		}
		ttl = window
	}

	return count, ttl, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	c, err := s.client(ctx)
	if err != nil {
		return err
	}
	return s.cache.Report(ctx, c.Del(ctx, key).Err())
}

const (
	fieldCount    = "count"
	fieldLastSeen = "last_seen"
)

// RecordSuspicious stores the record as a hash and restarts its retention.
func (s *RedisStore) RecordSuspicious(ctx context.Context, key string, at time.Time, retention time.Duration) (SuspiciousRecord, error) {
	c, err := s.client(ctx)
	if err != nil {
		return SuspiciousRecord{}, err
	}

	var incr *goredis.IntCmd
	if _, err := c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.HIncrBy(ctx, key, fieldCount, 1)
		p.HSet(ctx, key, fieldLastSeen, at.UnixMilli())
		p.PExpire(ctx, key, retention)
		return nil
	}); err != nil {
		return SuspiciousRecord{}, s.cache.Report(ctx, err)
	}

	return SuspiciousRecord{Count: incr.Val(), LastSeen: at}, nil
}

func (s *RedisStore) Suspicious(ctx context.Context, key string) (SuspiciousRecord, bool, error) {
	c, err := s.client(ctx)
	if err != nil {
		return SuspiciousRecord{}, false, err
	}

	fields, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return SuspiciousRecord{}, false, s.cache.Report(ctx, err)
	}
	if len(fields) == 0 {
		return SuspiciousRecord{}, false, nil
	}

	count, errCount := strconv.ParseInt(fields[fieldCount], 10, 64)
	ms, errSeen := strconv.ParseInt(fields[fieldLastSeen], 10, 64)
	if err := errors.Join(errCount, errSeen); err != nil {
		return SuspiciousRecord{}, false, err
	}

	return SuspiciousRecord{Count: count, LastSeen: time.UnixMilli(ms)}, true, nil
}
