package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/queue"
	"github.com/inkpress/coord/pkg/ratelimit"
	"github.com/inkpress/coord/pkg/redis"
	"github.com/inkpress/coord/pkg/validator"
)

// Creator creates a notification now. *Pipeline implements it.
type Creator interface {
	Create(ctx context.Context, params Params) (Notification, error)
}

// Enqueuer stores durable delayed tasks. *queue.Enqueuer implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// DelayedNotification is the queue payload of a delayed creation.
type DelayedNotification struct {
	Params Params `json:"params"`
}

// DelayedSender creates notifications after a delay.
//
// With the coordination cache available the job goes to the durable queue
// and a worker running Handler creates it. Without the cache it is held in
// in-process timers and lost on restart. If the durable path fails the
// notification is created immediately instead of being dropped.
type DelayedSender struct {
	creator  Creator
	enqueuer Enqueuer
	timers   *queue.Timers
	cache    redis.Provider
	logger   *slog.Logger
}

type DelayedOption func(*DelayedSender)

func WithDelayedLogger(l *slog.Logger) DelayedOption {
	return func(d *DelayedSender) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDelayedSender wires both backends. enqueuer may be nil to force the
// in-process path.
func NewDelayedSender(creator Creator, cache redis.Provider, enqueuer Enqueuer, timers *queue.Timers, opts ...DelayedOption) *DelayedSender {
	d := &DelayedSender{
		creator:  creator,
		enqueuer: enqueuer,
		timers:   timers,
		cache:    cache,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.Component("notifications.delayed"))
	return d
}

// Enqueue schedules params to be created after delay. A non-positive delay
// creates the notification synchronously.
func (d *DelayedSender) Enqueue(ctx context.Context, params Params, delay time.Duration) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if delay <= 0 {
		return d.createNow(ctx, params)
	}

	if d.enqueuer != nil && d.cache != nil && d.cache.Get(ctx) != nil {
		_, err := d.enqueuer.Enqueue(ctx, DelayedNotification{Params: params}, queue.WithDelay(delay))
		if err == nil {
			return nil
		}
		d.logger.LogAttrs(ctx, slog.LevelWarn, "durable queue failed, creating notification now",
			logger.UserID(params.UserID),
			logger.NotificationType(string(params.Type)),
			logger.Error(err),
		)
		return d.createNow(ctx, params)
	}

	if d.timers == nil {
		return d.createNow(ctx, params)
	}

	err := d.timers.Schedule(delay, func() {
		tctx := context.WithoutCancel(ctx)
		if _, err := d.creator.Create(tctx, params); err != nil {
			d.logger.LogAttrs(tctx, slog.LevelError, "delayed notification failed",
				logger.UserID(params.UserID),
				logger.NotificationType(string(params.Type)),
				logger.Error(err),
			)
		}
	})
	if err != nil {
		return d.createNow(ctx, params)
	}
	return nil
}

// Handler processes DelayedNotification tasks.
//
// Params that fail validation are logged and dropped. A rate-limited job is
// enqueued again for when the window resets and the current task completes,
// so waiting out a limit does not use up retries. Any other error makes the
// worker retry with backoff.
func (d *DelayedSender) Handler() queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, job DelayedNotification) error {
		_, err := d.creator.Create(ctx, job.Params)
		if err == nil {
			return nil
		}

		if isInvalidParams(err) {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "dropping invalid delayed notification",
				logger.UserID(job.Params.UserID),
				logger.NotificationType(string(job.Params.Type)),
				logger.Error(err),
			)
			return nil
		}

		var limitErr *ratelimit.LimitError
		if errors.As(err, &limitErr) && d.enqueuer != nil {
			delay := limitErr.Result.RetryAfter(time.Now())
			if _, qerr := d.enqueuer.Enqueue(ctx, job, queue.WithDelay(delay)); qerr != nil {
				return errors.Join(err, qerr)
			}
			d.logger.LogAttrs(ctx, slog.LevelDebug, "delayed notification rate limited, rescheduled",
				logger.UserID(job.Params.UserID),
				slog.Duration("retry_after", delay),
			)
			return nil
		}

		return err
	})
}

// isInvalidParams reports whether err rejects the params themselves, so
// retrying the same payload cannot succeed.
func isInvalidParams(err error) bool {
	if validator.IsValidationError(err) {
		return true
	}
	for _, target := range []error{
		ErrUserIDRequired,
		ErrInvalidType,
		ErrTitleRequired,
		ErrContentMismatch,
		ErrInvalidContent,
		ErrInvalidParams,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (d *DelayedSender) createNow(ctx context.Context, params Params) error {
	_, err := d.creator.Create(ctx, params)
	return err
}
