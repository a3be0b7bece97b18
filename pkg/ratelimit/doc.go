// Package ratelimit implements the distributed request limiter.
//
// Counting is fixed-window: the first hit on a key creates the counter with a
// TTL equal to the window, later hits only increment it, so the window resets
// Window after the first request, not after the latest one. This is a
// deliberate simplification; it allows short bursts across a window boundary.
//
// Keys are prefix + ip + ":" + path, plus ":user:" + hash(token) for per-user
// rules. Allowlisted and loopback addresses are never limited.
//
// When a client goes over the limit and the rule enables progressive
// backoff, the result carries ceil(count/limit), capped by the rule, and the
// advertised Retry-After is multiplied by it. Clients that reach the rule's
// suspicious factor are recorded for 24 hours and logged on the first and
// every Nth occurrence.
//
// Counters live in the coordination cache. FallbackStore switches to an
// in-memory store whenever the cache is absent or failing; in that mode
// limits hold per instance only, a known degradation that is logged when it
// starts and when it ends.
//
//	store, mem := ratelimit.NewStore(cacheManager, cfg, log)
//	defer mem.Close()
//	limiter := ratelimit.New(cfg, store, ratelimit.WithLogger(log))
//	r.With(ratelimit.Middleware(limiter, ratelimit.ClassAuth)).Post("/login", h)
package ratelimit
