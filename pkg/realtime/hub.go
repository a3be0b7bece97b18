package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkpress/coord/pkg/broadcast"
	"github.com/inkpress/coord/pkg/cache"
	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/metrics"
	"github.com/inkpress/coord/pkg/notifications"
	"github.com/inkpress/coord/pkg/redis"
)

type userStream = broadcast.MemoryBroadcaster[notifications.Event]

// Hub routes notification events to the connections of the addressed
// user. Events arrive from the shared pub/sub channel (Run) or, while the
// cache is unavailable, directly through Publish.
//
// Per-user streams are held in an LRU bounded by Config.MaxUsers. Evicting
// a stream closes its connections; clients reconnect.
type Hub struct {
	cache   redis.Provider
	channel string
	retry   time.Duration
	buffer  int
	logger  *slog.Logger

	mu      sync.Mutex
	streams *cache.LRUCache[string, *userStream]
	closed  bool

	conns     prometheus.Gauge
	delivered prometheus.Counter
	dropped   prometheus.Counter
}

type HubOption func(*Hub)

func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHubRegisterer exports connection and delivery metrics to reg.
func WithHubRegisterer(reg prometheus.Registerer) HubOption {
	return func(h *Hub) {
		h.conns = metrics.Register(reg, h.conns)
		h.delivered = metrics.Register(reg, h.delivered)
		h.dropped = metrics.Register(reg, h.dropped)
	}
}

// NewHub creates a hub consuming cfg.Channel from cache.
func NewHub(cfg Config, provider redis.Provider, opts ...HubOption) *Hub {
	if cfg.Channel == "" {
		cfg.Channel = notifications.DefaultChannel
	}
	if cfg.MaxUsers <= 0 {
		cfg.MaxUsers = DefaultConfig().MaxUsers
	}
	if cfg.ResubscribeGap <= 0 {
		cfg.ResubscribeGap = DefaultConfig().ResubscribeGap
	}

	h := &Hub{
		cache:   provider,
		channel: cfg.Channel,
		retry:   cfg.ResubscribeGap,
		buffer:  max(cfg.BufferSize, 1),
		logger:  slog.Default(),
		streams: cache.NewLRUCache[string, *userStream](cfg.MaxUsers),
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open realtime connections.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "events_delivered_total",
			Help:      "Events handed to at least one connection.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Events addressed to users without a connection on this instance.",
		}),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.logger = h.logger.With(logger.Component("realtime"))
	h.streams.SetEvictCallback(func(_ string, s *userStream) { _ = s.Close() })

	return h
}

// Publish delivers ev to local connections. It satisfies
// notifications.Publisher and serves as the fallback of RedisPublisher.
func (h *Hub) Publish(ctx context.Context, ev notifications.Event) error {
	if ev.UserID == "" {
		return nil
	}

	stream, ok := h.streams.Get(ev.UserID)
	if !ok {
		h.dropped.Inc()
		return nil
	}
	if err := stream.Broadcast(ctx, broadcast.Message[notifications.Event]{Data: ev}); err != nil {
		if errors.Is(err, broadcast.ErrBroadcasterClosed) {
			h.dropped.Inc()
			return nil
		}
		return err
	}
	h.delivered.Inc()
	return nil
}

// Subscription is one connection's view of a user stream.
type Subscription struct {
	sub  broadcast.Subscriber[notifications.Event]
	once sync.Once
	done func()
}

// Events is closed when the subscription ends, including when the reader
// fell behind.
func (s *Subscription) Events() <-chan broadcast.Message[notifications.Event] {
	return s.sub.Receive()
}

func (s *Subscription) Close() {
	s.once.Do(s.done)
}

// Subscribe attaches a connection to userID's stream.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	stream, _ := h.streams.GetOrCreate(userID, func() *userStream {
		return broadcast.NewMemoryBroadcaster[notifications.Event](h.buffer)
	})
	sub := stream.Subscribe(ctx)
	h.conns.Inc()

	return &Subscription{
		sub: sub,
		done: func() {
			_ = sub.Close()
			h.conns.Dec()
			h.release(userID)
		},
	}, nil
}

// release drops the stream of userID once nobody listens.
func (h *Hub) release(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams.RemoveIf(userID, func(s *userStream) bool { return s.Len() == 0 })
}

// Users returns the number of users with a stream on this instance.
func (h *Hub) Users() int { return h.streams.Len() }

// Run consumes the pub/sub channel until ctx is done. While the cache is
// unavailable it waits and retries; RedisPublisher delivers through Publish
// in the meantime.
func (h *Hub) Run(ctx context.Context) error {
	for {
		if err := h.consume(ctx); err != nil && ctx.Err() == nil {
			h.logger.LogAttrs(ctx, slog.LevelWarn, "realtime subscription interrupted",
				slog.String("channel", h.channel),
				logger.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(h.retry):
		}
	}
}

func (h *Hub) consume(ctx context.Context) error {
	client := h.cache.Get(ctx)
	if client == nil {
		return nil
	}

	ps := client.Subscribe(ctx, h.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return h.cache.Report(ctx, err)
	}
	h.logger.LogAttrs(ctx, slog.LevelDebug, "realtime subscribed", slog.String("channel", h.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pub/sub channel closed")
			}
			h.dispatch(ctx, msg.Payload)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, payload string) {
	var ev notifications.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed event", logger.Error(err))
		return
	}
	if err := h.Publish(ctx, ev); err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deliver event",
			logger.UserID(ev.UserID),
			logger.Error(err),
		)
	}
}

// Close ends every stream. Later subscriptions fail with ErrHubClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.streams.Clear()
	return nil
}
