package viewcount

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/metrics"
	"github.com/inkpress/coord/pkg/redis"
)

// drainScript subtracts the synced amount and removes the field once it
// reaches zero. Increments that landed after Pending was read survive.
var drainScript = goredis.NewScript(`
local left = redis.call('HINCRBY', KEYS[1], ARGV[1], -tonumber(ARGV[2]))
if left <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return left
`)

// Buffer accumulates view increments in a cache hash keyed by entity id.
type Buffer struct {
	cache   redis.Provider
	counter Counter
	key     string
	logger  *slog.Logger
	views   *prometheus.CounterVec
}

type BufferOption func(*Buffer)

func WithBufferLogger(l *slog.Logger) BufferOption {
	return func(b *Buffer) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBufferRegisterer exports coord_viewcount_increments_total{path}.
func WithBufferRegisterer(reg prometheus.Registerer) BufferOption {
	return func(b *Buffer) {
		b.views = metrics.Register(reg, b.views)
	}
}

// NewBuffer buffers into key. counter receives direct updates while the
// cache is unavailable.
func NewBuffer(cache redis.Provider, counter Counter, key string, opts ...BufferOption) (*Buffer, error) {
	if counter == nil {
		return nil, ErrCounterNil
	}
	if key == "" {
		key = DefaultConfig().Key
	}

	b := &Buffer{
		cache:   cache,
		counter: counter,
		key:     key,
		logger:  slog.Default(),
		views: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "viewcount",
			Name:      "increments_total",
			Help:      "View increments by path: buffered in the cache or written directly.",
		}, []string{"path"}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(logger.Component("viewcount"))
	return b, nil
}

// Increment records one view of entityID.
func (b *Buffer) Increment(ctx context.Context, entityID string) error {
	if entityID == "" {
		return ErrEntityIDRequired
	}

	if client := b.cache.Get(ctx); client != nil {
		err := client.HIncrBy(ctx, b.key, entityID, 1).Err()
		if err == nil {
			b.views.WithLabelValues("buffered").Inc()
			return nil
		}
		_ = b.cache.Report(ctx, err)
		b.logger.LogAttrs(ctx, slog.LevelDebug, "view buffer write failed, updating directly",
			logger.EntityID(entityID),
			logger.Error(err),
		)
	}

	b.views.WithLabelValues("direct").Inc()
	return b.counter.Add(ctx, entityID, 1)
}

// Pending returns the buffered amount per entity. Without a cache there is
// nothing buffered.
func (b *Buffer) Pending(ctx context.Context) (map[string]int64, error) {
	client := b.cache.Get(ctx)
	if client == nil {
		return nil, nil
	}

	raw, err := client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, b.cache.Report(ctx, fmt.Errorf("read view buffer: %w", err))
	}

	pending := make(map[string]int64, len(raw))
	for id, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			b.logger.LogAttrs(ctx, slog.LevelWarn, "skipping invalid buffered count",
				logger.EntityID(id),
				slog.String("value", v),
			)
			continue
		}
		pending[id] = n
	}
	return pending, nil
}

// Drain subtracts amount from the buffer of entityID.
func (b *Buffer) Drain(ctx context.Context, entityID string, amount int64) error {
	client := b.cache.Get(ctx)
	if client == nil {
		return redis.ErrUnavailable
	}
	if err := drainScript.Run(ctx, client, []string{b.key}, entityID, amount).Err(); err != nil {
		return b.cache.Report(ctx, fmt.Errorf("drain view buffer: %w", err))
	}
	return nil
}
