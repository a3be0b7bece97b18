package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkpress/coord/pkg/email"
	"github.com/inkpress/coord/pkg/environment"
	"github.com/inkpress/coord/pkg/httpserver"
	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/notifications"
	"github.com/inkpress/coord/pkg/pg"
	"github.com/inkpress/coord/pkg/queue"
	"github.com/inkpress/coord/pkg/ratelimit"
	"github.com/inkpress/coord/pkg/realtime"
	"github.com/inkpress/coord/pkg/redis"
	"github.com/inkpress/coord/pkg/session"
	"github.com/inkpress/coord/pkg/viewcount"
)

// app holds the wired components behind the HTTP routes.
type app struct {
	log      *slog.Logger
	gatherer prometheus.Gatherer
	checks   []httpserver.Check

	adminToken string
	devLogin   bool

	limiter  *ratelimit.Limiter
	sessions *session.Manager
	pipeline *notifications.Pipeline
	delayed  *notifications.DelayedSender
	hub      *realtime.Hub
	tokens   *realtime.Tokens
	ws       *realtime.Server
	views    *viewcount.Buffer
	syncer   *viewcount.Syncer
	tasks    *queue.RedisStorage

	worker    *queue.Worker
	scheduler *queue.Scheduler

	closers []func() error
}

func newApp(cfg appConfig, log *slog.Logger, reg *prometheus.Registry, cache *redis.Manager, db *pgxpool.Pool) (*app, error) {
	a := &app{
		log:        log,
		gatherer:   reg,
		adminToken: cfg.AdminToken,
		devLogin:   environment.Parse(cfg.Log.Env) == environment.Development,
		checks: []httpserver.Check{
			{Name: "postgres", Fn: pg.Healthcheck(db)},
			{Name: "cache", Fn: cache.Ping, Optional: true},
		},
	}

	rlStore, rlMem := ratelimit.NewStore(cache, cfg.RateLimit, log)
	a.closers = append(a.closers, rlMem.Close)
	a.limiter = ratelimit.New(cfg.RateLimit, rlStore,
		ratelimit.WithLogger(log),
		ratelimit.WithRegisterer(reg),
	)

	sessMem := session.NewMemoryStore(cfg.Session.CleanupInterval)
	a.closers = append(a.closers, sessMem.Close)
	sessions, err := session.New(cfg.Session,
		session.WithStore(session.NewRedisStore(cache, sessMem, cfg.Session.TTL)),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	a.sessions = sessions

	a.hub = realtime.NewHub(cfg.Realtime, cache,
		realtime.WithHubLogger(log),
		realtime.WithHubRegisterer(reg),
	)
	a.tokens, err = realtime.NewTokens(cfg.Realtime.TokenSecret, cfg.Realtime.TokenIssuer, cfg.Realtime.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("realtime tokens: %w", err)
	}
	a.ws = realtime.NewServer(cfg.Realtime, a.hub, a.tokens, realtime.WithServerLogger(log))

	a.tasks = queue.NewRedisStorage(cache, cfg.Queue)
	enqueuer, err := queue.NewEnqueuer(a.tasks, queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries))
	if err != nil {
		return nil, fmt.Errorf("queue enqueuer: %w", err)
	}
	timers := queue.NewTimers()
	a.closers = append(a.closers, timers.Close)

	deliverer, err := newDeliverer(cfg, log, db)
	if err != nil {
		return nil, err
	}
	queued := notifications.NewQueuedDeliverer(deliverer, cache, enqueuer, timers,
		notifications.WithQueuedDelivererLogger(log),
	)
	a.pipeline, err = notifications.NewPipeline(cfg.Notifications, notifications.NewPostgresStorage(db),
		notifications.WithLimiter(a.limiter),
		notifications.WithReadCache(notifications.NewRedisReadCache(cache,
			cfg.Notifications.CachePrefix,
			cfg.Notifications.ListCacheTTL,
			cfg.Notifications.CountCacheTTL,
		)),
		notifications.WithPublisher(notifications.NewRedisPublisher(cache, cfg.Notifications.Channel, a.hub)),
		notifications.WithDeliverer(queued),
		notifications.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("notification pipeline: %w", err)
	}

	a.delayed = notifications.NewDelayedSender(a.pipeline, cache, enqueuer, timers,
		notifications.WithDelayedLogger(log),
	)

	counter := viewcount.NewPostgresCounter(db)
	a.views, err = viewcount.NewBuffer(cache, counter, cfg.ViewCount.Key,
		viewcount.WithBufferLogger(log),
		viewcount.WithBufferRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("view buffer: %w", err)
	}
	a.syncer, err = viewcount.NewSyncer(cfg.ViewCount, a.views, counter,
		viewcount.WithSyncerLogger(log),
		viewcount.WithSyncerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("view syncer: %w", err)
	}

	a.worker, err = queue.NewWorker(a.tasks, cfg.Queue, queue.WithWorkerLogger(log))
	if err != nil {
		return nil, fmt.Errorf("queue worker: %w", err)
	}
	a.worker.RegisterHandlers(a.delayed.Handler(), queued.Handler(), a.syncer.Handler())

	a.scheduler, err = queue.NewScheduler(a.tasks, cfg.Queue, queue.WithSchedulerLogger(log))
	if err != nil {
		return nil, fmt.Errorf("queue scheduler: %w", err)
	}
	if err := a.scheduler.AddTask(viewcount.TaskName, syncSchedule(cfg.ViewCount.SyncHours)); err != nil {
		return nil, fmt.Errorf("schedule view sync: %w", err)
	}

	return a, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", logger.Error(err))
		}
	}
}

func syncSchedule(hours []int) queue.Schedule {
	switch len(hours) {
	case 0:
		return queue.TwiceDaily(3, 15)
	case 1:
		return queue.DailyAt(hours[0], 0)
	default:
		return queue.TwiceDaily(hours[0], hours[1])
	}
}

// newDeliverer emails the configured notification types through Postmark,
// or to files under the dev output directory when Postmark is not set up.
func newDeliverer(cfg appConfig, log *slog.Logger, db *pgxpool.Pool) (notifications.Deliverer, error) {
	if len(cfg.Notifications.EmailTypes) == 0 {
		return notifications.NoOpDeliverer{}, nil
	}

	var sender email.EmailSender = email.NewDevSender(cfg.Email.DevOutputDir)
	if cfg.Email.PostmarkEnabled() {
		pm, err := email.NewPostmarkClient(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("postmark client: %w", err)
		}
		sender = pm
	}

	return notifications.NewMultiDeliverer([]notifications.Deliverer{
		notifications.NewEmailDeliverer(sender, userEmails(db), cfg.Notifications.EmailTypes...),
	}, notifications.WithMultiDelivererLogger(log)), nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// userEmails resolves notification recipients from the users table.
func userEmails(db rowQuerier) notifications.RecipientResolver {
	return func(ctx context.Context, userID string) (string, error) {
		var addr *string
		err := db.QueryRow(ctx, "SELECT email FROM users WHERE id = $1", userID).Scan(&addr)
		switch {
		case pg.IsNotFoundError(err):
			return "", nil
		case err != nil:
			return "", err
		case addr == nil:
			return "", nil
		}
		return *addr, nil
	}
}
