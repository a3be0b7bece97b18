// Package httpserver runs an http.Server with graceful shutdown and
// serves liveness and readiness probes.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook(func() { _ = hub.Close() }),
//	)
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Run returns when ctx ends. Stop hooks run before the server waits for
// in-flight requests, so long-lived hijacked connections can be closed
// instead of holding shutdown until the timeout.
//
// ReadinessHandler marks checks as required or optional. The coordination
// cache is optional: a degraded cache slows the service down but does not
// take it out of rotation.
package httpserver
