package redis_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/redis"
)

func testConfig(url string) redis.Config {
	cfg := redis.DefaultConfig()
	cfg.ConnectionURL = url
	cfg.RetryAttempts = 1
	cfg.ConnectTimeout = time.Second
	cfg.RebuildDelay = 50 * time.Millisecond
	return cfg
}

func TestManager_AbsentWhenNotConfigured(t *testing.T) {
	t.Parallel()

	m := redis.NewManager(redis.DefaultConfig())
	assert.False(t, m.Enabled())
	assert.Nil(t, m.Get(context.Background()))
	assert.Equal(t, redis.StateAbsent, m.State())

	var nilManager *redis.Manager
	assert.Nil(t, nilManager.Get(context.Background()))
	assert.Equal(t, redis.StateAbsent, nilManager.State())
}

func TestManager_NilPing(t *testing.T) {
	t.Parallel()

	var m *redis.Manager
	assert.ErrorIs(t, m.Ping(context.Background()), redis.ErrUnavailable)
	assert.NoError(t, m.Run(context.Background()))
}

func TestManager_DisabledFlag(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	cfg := testConfig("redis://" + srv.Addr())
	cfg.Enabled = false

	m := redis.NewManager(cfg)
	assert.Nil(t, m.Get(context.Background()))
}

func TestManager_LazyConnect(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	reg := prometheus.NewRegistry()
	m := redis.NewManager(testConfig("redis://"+srv.Addr()), redis.WithRegisterer(reg))
	defer m.Close()

	assert.Equal(t, redis.StateAbsent, m.State())

	client := m.Get(context.Background())
	require.NotNil(t, client)
	assert.Equal(t, redis.StateReady, m.State())
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	assert.Same(t, client, m.Get(context.Background()), "ready client is reused")

	count, err := testutil.GatherAndCount(reg, "coord_cache_up")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_DegradedThenRebuilt(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	failing := atomic.Bool{}
	failing.Store(true)

	srv := miniredis.RunT(t)
	cfg := testConfig("redis://" + srv.Addr())

	m := redis.NewManager(cfg, redis.WithDialer(func(ctx context.Context, cfg redis.Config) (goredis.UniversalClient, error) {
		dials.Add(1)
		if failing.Load() {
			return nil, errors.New("dial refused")
		}
		return redis.Connect(ctx, cfg)
	}))
	defer m.Close()

	assert.Nil(t, m.Get(context.Background()))
	assert.Equal(t, redis.StateDegraded, m.State())

	// Within the rebuild delay no new dial happens.
	assert.Nil(t, m.Get(context.Background()))
	assert.Equal(t, int32(1), dials.Load())

	failing.Store(false)
	time.Sleep(60 * time.Millisecond)

	require.NotNil(t, m.Get(context.Background()))
	assert.Equal(t, redis.StateReady, m.State())
	assert.Equal(t, int32(2), dials.Load())
}

func TestManager_ReportDropsUnhealthyClient(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	m := redis.NewManager(testConfig("redis://" + srv.Addr()))
	defer m.Close()

	ctx := context.Background()
	first := m.Get(ctx)
	require.NotNil(t, first)

	// redis.Nil is a normal reply and keeps the client.
	_ = m.Report(ctx, goredis.Nil)
	assert.Equal(t, redis.StateReady, m.State())

	err := errors.New("read tcp: connection reset by peer")
	assert.Equal(t, err, m.Report(ctx, err))
	assert.Equal(t, redis.StateDegraded, m.State())

	second := m.Get(ctx)
	require.NotNil(t, second)
	assert.NotSame(t, first, second, "connection is recreated, not reused")
}

func TestManager_PingDetectsDeadServer(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	m := redis.NewManager(testConfig("redis://" + srv.Addr()))
	defer m.Close()

	ctx := context.Background()
	require.NotNil(t, m.Get(ctx))
	require.NoError(t, m.Ping(ctx))

	srv.Close()

	assert.Error(t, m.Ping(ctx))
	assert.Equal(t, redis.StateDegraded, m.State())
	assert.Nil(t, m.Get(ctx))
}

func TestManager_StateSubscribers(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	m := redis.NewManager(testConfig("redis://" + srv.Addr()))

	var mu sync.Mutex
	var states []redis.State
	m.OnStateChange(func(s redis.State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NotNil(t, m.Get(context.Background()))
	require.NoError(t, m.Close())
	assert.Nil(t, m.Get(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []redis.State{redis.StateConnecting, redis.StateReady, redis.StateClosed}, states)
}

func TestManager_ConcurrentGetSharesConnect(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	var dials atomic.Int32
	m := redis.NewManager(testConfig("redis://"+srv.Addr()), redis.WithDialer(func(ctx context.Context, cfg redis.Config) (goredis.UniversalClient, error) {
		dials.Add(1)
		time.Sleep(20 * time.Millisecond)
		return redis.Connect(ctx, cfg)
	}))
	defer m.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, m.Get(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dials.Load())
}

func TestManager_RunStopsOnClose(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	cfg := testConfig("redis://" + srv.Addr())
	cfg.HealthcheckInterval = 10 * time.Millisecond
	m := redis.NewManager(cfg)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	require.NotNil(t, m.Get(context.Background()))
	require.NoError(t, m.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	_, err := redis.Connect(context.Background(), redis.Config{})
	assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)

	_, err = redis.Connect(context.Background(), redis.Config{ConnectionURL: "://bad"})
	assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)

	_, err = redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://127.0.0.1:1/0",
		RetryAttempts:  2,
		MinRetryDelay:  time.Millisecond,
		MaxRetryDelay:  2 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, err, redis.ErrRedisNotReady)
}
