// Package cache provides two small generic in-memory caches.
//
// LRUCache is a bounded, thread-safe least-recently-used cache with an
// optional eviction callback. The realtime hub uses it to cap the number of
// per-user broadcasters kept in memory.
//
// ExpiringCache is a thread-safe map with per-entry TTL, an atomic Update for
// counters and a periodic Sweep. It backs every in-process fallback used when
// the coordination cache (Redis) is absent: the rate limiter's counters and
// suspicious-activity records, and the session store.
//
//	counters := cache.NewExpiringCache[string, int64](cache.WithSweepInterval(time.Minute))
//	defer counters.Close()
//
//	n, ttl := counters.Update("rl:1.2.3.4:/login", time.Minute, func(cur int64, _ bool) int64 {
//		return cur + 1
//	})
//
// Entries that reach their deadline are invisible to Get, Update and Range
// even before the sweeper removes them.
package cache
