// Command coord runs the coordination service: notification API, real-time
// delivery, sessions, rate limiting and the background jobs behind them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/inkpress/coord/migrations"
	"github.com/inkpress/coord/pkg/clientip"
	"github.com/inkpress/coord/pkg/config"
	"github.com/inkpress/coord/pkg/email"
	"github.com/inkpress/coord/pkg/httpserver"
	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/notifications"
	"github.com/inkpress/coord/pkg/pg"
	"github.com/inkpress/coord/pkg/queue"
	"github.com/inkpress/coord/pkg/ratelimit"
	"github.com/inkpress/coord/pkg/realtime"
	"github.com/inkpress/coord/pkg/redis"
	"github.com/inkpress/coord/pkg/requestid"
	"github.com/inkpress/coord/pkg/session"
	"github.com/inkpress/coord/pkg/viewcount"
)

type appConfig struct {
	Log           logger.Config
	HTTP          httpserver.Config
	Redis         redis.Config
	PG            pg.Config
	RateLimit     ratelimit.Config
	Session       session.Config
	Notifications notifications.Config
	Queue         queue.Config
	Realtime      realtime.Config
	ViewCount     viewcount.Config
	Email         email.Config

	// AdminToken guards /admin routes. Empty leaves them unmounted.
	AdminToken string `env:"ADMIN_TOKEN"`
}

func main() {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "coord: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(
		logger.FromConfig(cfg.Log),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			session.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("coord stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("coord stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cache := redis.NewManager(cfg.Redis,
		redis.WithLogger(log),
		redis.WithRegisterer(reg),
	)
	defer cache.Close()

	db, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := pg.MigrateFS(ctx, db, migrations.FS, cfg.PG, log); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	app, err := newApp(cfg, log, reg, cache, db)
	if err != nil {
		return err
	}
	defer app.close()

	server := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStopHook(func() { _ = app.hub.Close() }),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cache.Run(ctx) })
	g.Go(func() error { return app.hub.Run(ctx) })
	g.Go(app.worker.Run(ctx))
	g.Go(func() error { return app.scheduler.Run(ctx) })
	g.Go(func() error { return server.Run(ctx, app.router()) })

	return g.Wait()
}
