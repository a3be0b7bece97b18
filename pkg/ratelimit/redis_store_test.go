package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/ratelimit"
	"github.com/inkpress/coord/pkg/redis"
)

func newRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestRedisStore_TTLSetOnFirstHitOnly(t *testing.T) {
	t.Parallel()

	c, srv := newRedis(t)
	s := ratelimit.NewRedisStore(redis.Static(c))
	ctx := context.Background()

	count, ttl, err := s.Increment(ctx, "rl:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, ttl)

	srv.FastForward(20 * time.Second)

	count, ttl, err = s.Increment(ctx, "rl:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 40*time.Second, ttl, "expiry is not pushed by later hits")

	srv.FastForward(41 * time.Second)
	count, _, err = s.Increment(ctx, "rl:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStore_ReappliesMissingTTL(t *testing.T) {
	t.Parallel()

	c, srv := newRedis(t)
	s := ratelimit.NewRedisStore(redis.Static(c))
	ctx := context.Background()

	// A counter left behind without expiry.
	require.NoError(t, srv.Set("rl:orphan", "3"))

	count, ttl, err := s.Increment(ctx, "rl:orphan", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, time.Minute, srv.TTL("rl:orphan"))
}

func TestRedisStore_Suspicious(t *testing.T) {
	t.Parallel()

	c, srv := newRedis(t)
	s := ratelimit.NewRedisStore(redis.Static(c))
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	_, found, err := s.Suspicious(ctx, "rl:suspicious:ip:/p")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.RecordSuspicious(ctx, "rl:suspicious:ip:/p", at, 24*time.Hour)
	require.NoError(t, err)
	rec, err := s.RecordSuspicious(ctx, "rl:suspicious:ip:/p", at.Add(time.Second), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Count)
	assert.Equal(t, 24*time.Hour, srv.TTL("rl:suspicious:ip:/p"))

	got, found, err := s.Suspicious(ctx, "rl:suspicious:ip:/p")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), got.Count)
	assert.True(t, got.LastSeen.Equal(at.Add(time.Second)))
}

func TestRedisStore_Unavailable(t *testing.T) {
	t.Parallel()

	s := ratelimit.NewRedisStore(redis.Static(nil))
	_, _, err := s.Increment(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, redis.ErrUnavailable)
}

type brokenStore struct{ ratelimit.Store }

func (brokenStore) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestFallbackStore_FailsOpenToMemory(t *testing.T) {
	t.Parallel()

	mem := ratelimit.NewMemoryStore(0)
	defer mem.Close()

	s := ratelimit.NewFallbackStore(brokenStore{}, mem, nil)
	ctx := context.Background()

	count, _, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, s.Degraded())

	count, _, err = s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "memory keeps counting while degraded")
}

func TestFallbackStore_RecoversWhenCacheReturns(t *testing.T) {
	t.Parallel()

	c, _ := newRedis(t)
	mem := ratelimit.NewMemoryStore(0)
	defer mem.Close()

	var live goredis.UniversalClient
	provider := providerFunc(func() goredis.UniversalClient { return live })
	s := ratelimit.NewFallbackStore(ratelimit.NewRedisStore(provider), mem, nil)
	ctx := context.Background()

	_, _, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, s.Degraded())

	live = c
	count, _, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, s.Degraded())
	assert.Equal(t, int64(1), count, "shared store starts its own count")
}

type providerFunc func() goredis.UniversalClient

func (f providerFunc) Get(context.Context) goredis.UniversalClient { return f() }
func (f providerFunc) Report(_ context.Context, err error) error  { return err }
