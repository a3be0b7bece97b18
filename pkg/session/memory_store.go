package session

import (
	"context"
	"slices"
	"time"

	"github.com/inkpress/coord/pkg/cache"
)

// MemoryStore keeps sessions in process memory. It is used when the
// coordination cache is not configured; sessions do not survive a restart
// and are not shared between instances.
type MemoryStore struct {
	sessions *cache.ExpiringCache[string, Session]
	users    *cache.ExpiringCache[string, []string]
}

// NewMemoryStore creates a store swept every cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration, opts ...cache.ExpiringOption) *MemoryStore {
	opts = append([]cache.ExpiringOption{cache.WithSweepInterval(cleanupInterval)}, opts...)
	return &MemoryStore{
		sessions: cache.NewExpiringCache[string, Session](opts...),
		users:    cache.NewExpiringCache[string, []string](opts...),
	}
}

func (m *MemoryStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		m.sessions.Delete(s.ID)
		return m.Unindex(ctx, s.UserID, s.ID)
	}
	m.sessions.Set(s.ID, *s, ttl)
	if s.Status != StatusActive {
		return nil
	}
	m.users.Compute(s.UserID, func(ids []string, rem time.Duration, _ bool) ([]string, time.Duration) {
		if slices.Contains(ids, s.ID) {
			return ids, max(rem, ttl)
		}
		return append(slices.Clone(ids), s.ID), max(rem, ttl)
	})
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s, _, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	var err error
	m.sessions.Compute(id, func(cur Session, rem time.Duration, ok bool) (Session, time.Duration) {
		if !ok {
			err = ErrSessionNotFound
			return cur, 0
		}
		if err = statusError(cur.Status); err != nil {
			return cur, rem
		}
		cur.LastActivityAt = at
		return cur, rem
	})
	return err
}

func (m *MemoryStore) Unindex(_ context.Context, userID string, ids ...string) error {
	m.users.Compute(userID, func(cur []string, rem time.Duration, _ bool) ([]string, time.Duration) {
		next := slices.DeleteFunc(slices.Clone(cur), func(id string) bool {
			return slices.Contains(ids, id)
		})
		if len(next) == 0 {
			return nil, 0
		}
		return next, rem
	})
	return nil
}

func (m *MemoryStore) UserSessions(_ context.Context, userID string) ([]string, error) {
	ids, _, _ := m.users.Get(userID)
	return slices.Clone(ids), nil
}

// Close stops the background sweep.
func (m *MemoryStore) Close() error {
	_ = m.sessions.Close()
	return m.users.Close()
}
