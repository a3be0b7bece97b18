package realtime_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/notifications"
	"github.com/inkpress/coord/pkg/realtime"
	"github.com/inkpress/coord/pkg/redis"
)

func testConfig() realtime.Config {
	cfg := realtime.DefaultConfig()
	cfg.TokenSecret = "secret"
	cfg.ResubscribeGap = 10 * time.Millisecond
	return cfg
}

func nextEvent(t *testing.T, sub *realtime.Subscription) notifications.Event {
	t.Helper()
	select {
	case msg, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return msg.Data
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return notifications.Event{}
}

func TestHub_PublishRoutesByUser(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub(testConfig(), redis.Static(nil))
	t.Cleanup(func() { _ = hub.Close() })

	ctx := context.Background()
	alice, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	bob, err := hub.Subscribe(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Users())

	require.NoError(t, hub.Publish(ctx, notifications.DeleteEvent("alice", "n1")))

	ev := nextEvent(t, alice)
	assert.Equal(t, notifications.EventDelete, ev.Type)
	assert.Equal(t, "n1", ev.ID)

	select {
	case <-bob.Events():
		t.Fatal("bob received alice's event")
	default:
	}

	// Events for users without connections are dropped.
	require.NoError(t, hub.Publish(ctx, notifications.DeleteEvent("carol", "n2")))
}

func TestHub_ReleasesIdleStreams(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub(testConfig(), redis.Static(nil))
	t.Cleanup(func() { _ = hub.Close() })

	ctx := context.Background()
	first, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	second, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Users())

	first.Close()
	first.Close()
	assert.Equal(t, 1, hub.Users(), "stream kept while a connection remains")

	second.Close()
	assert.Zero(t, hub.Users())
}

func TestHub_EvictsLeastRecentUser(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxUsers = 1
	hub := realtime.NewHub(cfg, redis.Static(nil))
	t.Cleanup(func() { _ = hub.Close() })

	ctx := context.Background()
	alice, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "bob")
	require.NoError(t, err)

	select {
	case _, ok := <-alice.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("evicted subscription was not closed")
	}
}

func TestHub_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	hub := realtime.NewHub(testConfig(), redis.Static(nil), realtime.WithHubRegisterer(reg))
	t.Cleanup(func() { _ = hub.Close() })

	sub, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), notifications.DeleteEvent("alice", "n1")))
	require.NoError(t, hub.Publish(context.Background(), notifications.DeleteEvent("bob", "n1")))

	n, err := testutil.GatherAndCount(reg, "coord_realtime_connections", "coord_realtime_events_delivered_total", "coord_realtime_events_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sub.Close()
}

func TestHub_ClosedRejectsSubscribe(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub(testConfig(), redis.Static(nil))
	sub, err := hub.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, hub.Close())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err = hub.Subscribe(context.Background(), "alice")
	assert.ErrorIs(t, err, realtime.ErrHubClosed)

	_, err = hub.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, realtime.ErrNoUser)
}

func TestHub_RunConsumesChannel(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := realtime.NewHub(testConfig(), redis.Static(client))
	t.Cleanup(func() { _ = hub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	sub, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)

	// Wait until the hub's subscription is registered.
	require.Eventually(t, func() bool {
		return len(srv.PubSubChannels("")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(ctx, notifications.DefaultChannel, "not json").Err())

	pub := notifications.NewRedisPublisher(redis.Static(client), "", hub)
	n := notifications.Notification{ID: "n1", UserID: "alice", Type: notifications.TypeFollow, Title: "New follower",
		Content: notifications.FollowContent{FollowerID: "bob"}}
	require.NoError(t, pub.Publish(ctx, notifications.CreatedEvent(n)))

	ev := nextEvent(t, sub)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, "n1", ev.Notification.ID)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"followerId":"bob"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
