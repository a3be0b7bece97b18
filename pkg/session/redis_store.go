package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/inkpress/coord/pkg/redis"
)

// touchAttempts bounds optimistic retries when the record changes between
// WATCH and EXEC.
const touchAttempts = 3

const (
	sessionKeyPrefix = "session:"
	userKeyPrefix    = "user:"
	userKeySuffix    = ":sessions"
)

func sessionKey(id string) string     { return sessionKeyPrefix + id }
func userSetKey(userID string) string { return userKeyPrefix + userID + userKeySuffix }

// RedisStore keeps sessions in the coordination cache under session:<id>
// with a set user:<id>:sessions for enumeration.
//
// While the cache is not configured or degraded the store delegates to
// fallback. Command errors are returned, not absorbed: a session that
// cannot be checked is treated as unauthenticated.
type RedisStore struct {
	cache    redis.Provider
	fallback Store
	// indexTTL bounds the lifetime of the user set.
	indexTTL time.Duration
}

// NewRedisStore creates the store. fallback may be nil, in which case
// redis.ErrUnavailable is returned while the cache is down.
func NewRedisStore(cache redis.Provider, fallback Store, indexTTL time.Duration) *RedisStore {
	return &RedisStore{cache: cache, fallback: fallback, indexTTL: indexTTL}
}

func (s *RedisStore) client(ctx context.Context) goredis.UniversalClient {
	return s.cache.Get(ctx)
}

func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	c := s.client(ctx)
	if c == nil {
		return s.withFallback(func(f Store) error { return f.Save(ctx, sess, ttl) })
	}

	if ttl <= 0 {
		_, err := c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, sessionKey(sess.ID))
			p.SRem(ctx, userSetKey(sess.UserID), sess.ID)
			return nil
		})
		return s.cache.Report(ctx, err)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, sessionKey(sess.ID), data, ttl)
		if sess.Status == StatusActive {
			p.SAdd(ctx, userSetKey(sess.UserID), sess.ID)
			p.Expire(ctx, userSetKey(sess.UserID), max(s.indexTTL, ttl))
		}
		return nil
	})
	return s.cache.Report(ctx, err)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	c := s.client(ctx)
	if c == nil {
		var out *Session
		err := s.withFallback(func(f Store) (err error) {
			out, err = f.Get(ctx, id)
			return err
		})
		return out, err
	}

	data, err := c.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, s.cache.Report(ctx, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}
	return &sess, nil
}

// Touch updates LastActivityAt under WATCH, so a concurrent Revoke either
// lands before the read and is seen, or aborts the write. The key keeps its
// TTL.
func (s *RedisStore) Touch(ctx context.Context, id string, at time.Time) error {
	c := s.client(ctx)
	if c == nil {
		return s.withFallback(func(f Store) error { return f.Touch(ctx, id, at) })
	}

	key := sessionKey(id)
	touch := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return errors.Join(ErrInvalidSession, err)
		}
		if err := statusError(sess.Status); err != nil {
			return err
		}

		sess.LastActivityAt = at
		if data, err = json.Marshal(&sess); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, key, data, goredis.KeepTTL)
			return nil
		})
		return err
	}

	for range touchAttempts {
		err := c.Watch(ctx, touch, key)
		switch {
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case isRejection(err):
			return err
		default:
			return s.cache.Report(ctx, err)
		}
	}
	return errors.Join(ErrInvalidSession, goredis.TxFailedErr)
}

func (s *RedisStore) Unindex(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	c := s.client(ctx)
	if c == nil {
		return s.withFallback(func(f Store) error { return f.Unindex(ctx, userID, ids...) })
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return s.cache.Report(ctx, c.SRem(ctx, userSetKey(userID), members...).Err())
}

func (s *RedisStore) UserSessions(ctx context.Context, userID string) ([]string, error) {
	c := s.client(ctx)
	if c == nil {
		var out []string
		err := s.withFallback(func(f Store) (err error) {
			out, err = f.UserSessions(ctx, userID)
			return err
		})
		return out, err
	}

	ids, err := c.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return nil, s.cache.Report(ctx, err)
	}
	return ids, nil
}

func (s *RedisStore) withFallback(fn func(Store) error) error {
	if s.fallback == nil {
		return redis.ErrUnavailable
	}
	return fn(s.fallback)
}
