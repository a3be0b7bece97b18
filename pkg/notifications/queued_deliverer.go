package notifications

import (
	"context"
	"log/slog"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/queue"
	"github.com/inkpress/coord/pkg/redis"
)

// DeliveryJob is the queue payload of a deferred delivery.
type DeliveryJob struct {
	Notifications []Notification `json:"notifications"`
	Batch         bool           `json:"batch,omitempty"`
}

// QueuedDeliverer moves delivery off the request path. Jobs go to the
// durable queue while the coordination cache is available and a worker
// running Handler sends them through the inner deliverer. Otherwise they
// run on in-process timers. Deliver only fails when neither path accepts
// the job.
type QueuedDeliverer struct {
	inner    Deliverer
	enqueuer Enqueuer
	timers   *queue.Timers
	cache    redis.Provider
	logger   *slog.Logger
}

type QueuedDelivererOption func(*QueuedDeliverer)

func WithQueuedDelivererLogger(l *slog.Logger) QueuedDelivererOption {
	return func(q *QueuedDeliverer) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQueuedDeliverer wraps inner. enqueuer may be nil to use timers only.
func NewQueuedDeliverer(inner Deliverer, cache redis.Provider, enqueuer Enqueuer, timers *queue.Timers, opts ...QueuedDelivererOption) *QueuedDeliverer {
	q := &QueuedDeliverer{
		inner:    inner,
		enqueuer: enqueuer,
		timers:   timers,
		cache:    cache,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(logger.Component("notifications.delivery"))
	return q
}

func (q *QueuedDeliverer) Deliver(ctx context.Context, notif Notification) error {
	return q.submit(ctx, DeliveryJob{Notifications: []Notification{notif}})
}

func (q *QueuedDeliverer) DeliverBatch(ctx context.Context, notifs []Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	return q.submit(ctx, DeliveryJob{Notifications: notifs, Batch: true})
}

// Handler processes DeliveryJob tasks. A returned error makes the worker
// retry with backoff.
func (q *QueuedDeliverer) Handler() queue.Handler {
	return queue.NewTaskHandler(q.run)
}

func (q *QueuedDeliverer) submit(ctx context.Context, job DeliveryJob) error {
	if q.enqueuer != nil && q.cache != nil && q.cache.Get(ctx) != nil {
		_, err := q.enqueuer.Enqueue(ctx, job)
		if err == nil {
			return nil
		}
		q.logger.LogAttrs(ctx, slog.LevelWarn, "durable queue failed, delivering in process",
			logger.Count(int64(len(job.Notifications))),
			logger.Error(err),
		)
	}

	if q.timers == nil {
		return q.run(ctx, job)
	}

	dctx := context.WithoutCancel(ctx)
	err := q.timers.Schedule(0, func() {
		if err := q.run(dctx, job); err != nil {
			q.logger.LogAttrs(dctx, slog.LevelError, "deferred delivery failed",
				logger.Count(int64(len(job.Notifications))),
				logger.Error(err),
			)
		}
	})
	if err != nil {
		return q.run(ctx, job)
	}
	return nil
}

func (q *QueuedDeliverer) run(ctx context.Context, job DeliveryJob) error {
	if job.Batch {
		return q.inner.DeliverBatch(ctx, job.Notifications)
	}
	for _, n := range job.Notifications {
		if err := q.inner.Deliver(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
