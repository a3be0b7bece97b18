// Package pg bootstraps the PostgreSQL layer on pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config, retrying while the database
// comes up. Migrate and MigrateFS run goose migrations over the same pool,
// from a directory or from an embedded filesystem. Healthcheck returns a
// probe suitable for a readiness endpoint.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
//
// Repositories use IsNotFoundError to map rows-not-found to their own
// sentinel errors.
package pg
