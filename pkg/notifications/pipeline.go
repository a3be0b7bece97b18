package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/ratelimit"
)

// Limiter is the rate-limit primitive used for per-type creation limits.
// *ratelimit.Limiter implements it.
type Limiter interface {
	CheckKey(ctx context.Context, key string, rule ratelimit.Rule) (ratelimit.Result, error)
}

// Pipeline creates, lists and mutates notifications.
//
// Storage is the source of truth. Publishing, delivery and cache
// invalidation happen after a successful write and never undo it.
type Pipeline struct {
	cfg       Config
	storage   Storage
	limiter   Limiter
	cache     ReadCache
	publisher Publisher
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLimiter enables per-type creation limits when Config.RateLimitEnabled.
func WithLimiter(l Limiter) PipelineOption {
	return func(p *Pipeline) {
		p.limiter = l
	}
}

// WithReadCache enables read-through caching when Config.CacheEnabled.
func WithReadCache(c ReadCache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = c
	}
}

func WithPublisher(pub Publisher) PipelineOption {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

func WithDeliverer(d Deliverer) PipelineOption {
	return func(p *Pipeline) {
		if d != nil {
			p.deliverer = d
		}
	}
}

func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline creates a pipeline over storage.
func NewPipeline(cfg Config, storage Storage, opts ...PipelineOption) (*Pipeline, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	p := &Pipeline{
		cfg:       cfg,
		storage:   storage,
		publisher: NoOpPublisher{},
		deliverer: NoOpDeliverer{},
		logger:    slog.Default(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}

	if !cfg.CacheEnabled {
		p.cache = nil
	}
	if !cfg.RateLimitEnabled {
		p.limiter = nil
	}
	p.logger = p.logger.With(logger.Component("notifications"))

	return p, nil
}

// Create validates params, applies the per-type limit, stores the
// notification and fans it out. A rejected limit returns a
// *ratelimit.LimitError and writes nothing.
func (p *Pipeline) Create(ctx context.Context, params Params) (Notification, error) {
	if err := params.Validate(); err != nil {
		return Notification{}, err
	}

	if err := p.checkLimit(ctx, params.UserID, params.Type); err != nil {
		return Notification{}, err
	}

	n := p.build(params)
	if err := p.storage.Insert(ctx, n.UserID, []Notification{n}); err != nil {
		return Notification{}, errors.Join(ErrFailedToStore, err)
	}

	p.publish(ctx, CreatedEvent(n))
	if err := p.deliverer.Deliver(ctx, n); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deliver notification, it was stored",
			logger.UserID(n.UserID),
			slog.String("notification_id", n.ID),
			logger.Error(err),
		)
	}
	p.invalidate(ctx, n.UserID)

	return n, nil
}

// CreateBatch stores params grouped by user, one atomic write per user, and
// publishes one batch event per user. It does not apply creation limits.
// On a storage failure it returns the notifications stored so far.
func (p *Pipeline) CreateBatch(ctx context.Context, params []Params) ([]Notification, error) {
	for i, prm := range params {
		if err := prm.Validate(); err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
	}

	var order []string
	groups := make(map[string][]Notification)
	for _, prm := range params {
		if _, ok := groups[prm.UserID]; !ok {
			order = append(order, prm.UserID)
		}
		groups[prm.UserID] = append(groups[prm.UserID], p.build(prm))
	}

	created := make([]Notification, 0, len(params))
	for _, userID := range order {
		batch := groups[userID]
		if err := p.storage.Insert(ctx, userID, batch); err != nil {
			return created, errors.Join(ErrFailedToStore, err)
		}
		created = append(created, batch...)

		p.publish(ctx, BatchEvent(userID, batch))
		if err := p.deliverer.DeliverBatch(ctx, batch); err != nil {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deliver notification batch, it was stored",
				logger.UserID(userID),
				logger.Count(int64(len(batch))),
				logger.Error(err),
			)
		}
		p.invalidate(ctx, userID)
	}

	return created, nil
}

// MarkRead marks ids read and returns how many changed. Empty ids marks
// every notification of the user read and resets the counter.
func (p *Pipeline) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}

	var (
		n   int
		err error
	)
	if len(ids) == 0 {
		n, err = p.storage.MarkAllRead(ctx, userID)
	} else {
		n, err = p.storage.MarkRead(ctx, userID, ids)
	}
	if err != nil {
		return 0, err
	}

	p.publish(ctx, MarkReadEvent(userID, ids))
	p.invalidate(ctx, userID)
	return n, nil
}

// Delete removes one notification of userID.
func (p *Pipeline) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if _, err := p.storage.Delete(ctx, userID, id); err != nil {
		return err
	}

	p.publish(ctx, DeleteEvent(userID, id))
	p.invalidate(ctx, userID)
	return nil
}

// Get returns one notification of userID.
func (p *Pipeline) Get(ctx context.Context, userID, id string) (Notification, error) {
	return p.storage.Get(ctx, userID, id)
}

// List returns one page of notifications, newest first. Pages are served
// from the read cache when enabled.
func (p *Pipeline) List(ctx context.Context, userID string, opts ListOptions) (Page, error) {
	if userID == "" {
		return Page{}, ErrUserIDRequired
	}
	opts = opts.Normalize()

	if p.cache != nil {
		if page, ok := p.cache.GetList(ctx, userID, opts); ok {
			return page, nil
		}
	}

	items, total, err := p.storage.List(ctx, userID, opts)
	if err != nil {
		return Page{}, err
	}

	page := newPage(items, total, opts)
	if p.cache != nil {
		p.cache.SetList(ctx, userID, opts, page)
	}
	return page, nil
}

// UnreadCount returns the user's unread counter.
func (p *Pipeline) UnreadCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}

	if p.cache != nil {
		if n, ok := p.cache.GetUnread(ctx, userID); ok {
			return n, nil
		}
	}

	n, err := p.storage.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if p.cache != nil {
		p.cache.SetUnread(ctx, userID, n)
	}
	return n, nil
}

// Recount rebuilds the unread counter from rows.
func (p *Pipeline) Recount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	n, err := p.storage.Recount(ctx, userID)
	if err != nil {
		return 0, err
	}
	p.invalidate(ctx, userID)
	return n, nil
}

func (p *Pipeline) checkLimit(ctx context.Context, userID string, t Type) error {
	if p.limiter == nil {
		return nil
	}
	rule, limited := p.cfg.CreationRule(t)
	if !limited {
		return nil
	}

	res, err := p.limiter.CheckKey(ctx, p.cfg.RateLimitPrefix+userID+":"+string(t), rule)
	if err != nil {
		return err
	}
	if !res.Allowed {
		p.logger.LogAttrs(ctx, slog.LevelDebug, "notification rejected by creation limit",
			logger.UserID(userID),
			logger.NotificationType(string(t)),
			logger.Count(res.Count),
		)
		return &ratelimit.LimitError{Result: res}
	}
	return nil
}

func (p *Pipeline) build(params Params) Notification {
	return Notification{
		ID:        p.newID(),
		UserID:    params.UserID,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Content:   params.Content,
		ActorID:   params.ActorID,
		CreatedAt: p.now().UTC(),
	}
}

func (p *Pipeline) publish(ctx context.Context, ev Event) {
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to publish notification event",
			logger.UserID(ev.UserID),
			logger.Error(err),
		)
	}
}

func (p *Pipeline) invalidate(ctx context.Context, userID string) {
	if p.cache != nil {
		p.cache.Invalidate(ctx, userID)
	}
}
