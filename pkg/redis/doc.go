// Package redis owns the connection to the coordination cache.
//
// The cache is optional. When REDIS_URL is unset or CACHE_ENABLED is false
// every consumer runs on its in-memory fallback, and the process behaves as a
// single-instance deployment. When it is configured, the Manager connects
// lazily on first use and tracks one of five states:
//
//	absent -> connecting -> ready
//	              |           |
//	              v           v
//	          degraded <------+
//	              |
//	              v (after RebuildDelay)
//	          connecting
//
// Consumers call Get for every operation and fall back to memory when it
// returns nil. Command errors are passed to Report, which drops the client on
// connection-level failures (not on redis.Nil or server replies) so the next
// Get recreates it from scratch. Transitions are logged once per episode.
//
// # Usage
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//	manager := redis.NewManager(cfg,
//		redis.WithLogger(log),
//		redis.WithRegisterer(prometheus.DefaultRegisterer),
//	)
//	defer manager.Close()
//	go manager.Run(ctx)
//
//	if client := manager.Get(ctx); client != nil {
//		if err := client.Incr(ctx, key).Err(); err != nil {
//			_ = manager.Report(ctx, err)
//		}
//	}
//
// Connect and Healthcheck are also exported for callers that manage their own
// client.
//
// # Errors
//
// Connection errors wrap a sentinel (ErrRedisNotReady, ErrEmptyConnectionURL,
// ErrFailedToParseRedisConnString) with errors.Join, so errors.Is works.
package redis
