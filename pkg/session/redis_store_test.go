package session_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/redis"
	"github.com/inkpress/coord/pkg/session"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *session.RedisStore) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, session.NewRedisStore(redis.Static(client), nil, 24*time.Hour)
}

func TestRedisStore_Layout(t *testing.T) {
	t.Parallel()

	srv, store := newRedisStore(t)
	ctx := context.Background()

	s := &session.Session{ID: "s1", UserID: "u1", Status: session.StatusActive, Fingerprint: "fp"}
	require.NoError(t, store.Save(ctx, s, time.Hour))

	raw, err := srv.Get("session:s1")
	require.NoError(t, err)
	var decoded session.Session
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, "fp", decoded.Fingerprint)
	assert.Equal(t, time.Hour, srv.TTL("session:s1"))

	members, err := srv.Members("user:u1:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)
	assert.Equal(t, 24*time.Hour, srv.TTL("user:u1:sessions"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, store.Unindex(ctx, "u1", "s1"))
	assert.False(t, srv.Exists("user:u1:sessions"))
	assert.True(t, srv.Exists("session:s1"))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRedisStore_VerifyKeepsRemainingTTL(t *testing.T) {
	t.Parallel()

	srv, store := newRedisStore(t)
	clock := newClock()
	m, err := session.New(testConfig(), session.WithStore(store), session.WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", newRequest(firefox), time.Hour)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	srv.FastForward(10 * time.Minute)
	_, err = m.Verify(ctx, withToken(newRequest(firefox), s.Token))
	require.NoError(t, err)

	assert.Equal(t, 50*time.Minute, srv.TTL("session:"+s.ID))
}

func TestRedisStore_FailsClosed(t *testing.T) {
	t.Parallel()

	srv, store := newRedisStore(t)
	m, err := session.New(testConfig(), session.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", newRequest(firefox), time.Hour)
	require.NoError(t, err)

	srv.Close()

	_, err = m.Verify(ctx, withToken(newRequest(firefox), s.Token))
	assert.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestRedisStore_FallbackWithoutCache(t *testing.T) {
	t.Parallel()

	mem := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	store := session.NewRedisStore(redis.Static(nil), mem, time.Hour)
	ctx := context.Background()

	s := &session.Session{ID: "s1", UserID: "u1", Status: session.StatusActive}
	require.NoError(t, store.Save(ctx, s, time.Hour))

	got, err := mem.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	ids, err := store.UserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	bare := session.NewRedisStore(redis.Static(nil), nil, time.Hour)
	_, err = bare.Get(ctx, "s1")
	assert.ErrorIs(t, err, redis.ErrUnavailable)
}

func TestRedisStore_TouchOnlyActive(t *testing.T) {
	t.Parallel()

	srv, store := newRedisStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	s := &session.Session{ID: "s1", UserID: "u1", Status: session.StatusActive}
	require.NoError(t, store.Save(ctx, s, time.Hour))
	srv.FastForward(10 * time.Minute)

	require.NoError(t, store.Touch(ctx, "s1", at))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, at, got.LastActivityAt.UTC())
	assert.Equal(t, 50*time.Minute, srv.TTL("session:s1"), "touch keeps the remaining TTL")

	s.Status = session.StatusRevoked
	require.NoError(t, store.Save(ctx, s, time.Hour))
	require.NoError(t, store.Unindex(ctx, "u1", "s1"))

	assert.ErrorIs(t, store.Touch(ctx, "s1", at.Add(time.Minute)), session.ErrSessionRevoked)
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevoked, got.Status)
	assert.False(t, srv.Exists("user:u1:sessions"), "a rejected touch does not re-index")

	assert.ErrorIs(t, store.Touch(ctx, "missing", at), session.ErrSessionNotFound)
}
