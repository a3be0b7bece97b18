// Package session manages fingerprinted login sessions.
//
// A session record lives in the coordination cache under session:<id>, with
// the set user:<userID>:sessions listing the user's active sessions. The
// client holds a signed token that carries only the session id; it travels
// in a bearer Authorization header or an HttpOnly cookie.
//
// Every session is bound to a keyed fingerprint of the client IP, User-Agent
// and Accept-Language it was created from. Verify rejects a request whose
// fingerprint differs but does not revoke the session, so a user whose
// address changes can simply sign in again without locking out their other
// devices.
//
//	store := session.NewRedisStore(cacheManager, session.NewMemoryStore(cfg.CleanupInterval), cfg.TTL)
//	mgr, err := session.New(cfg, session.WithStore(store), session.WithLogger(log))
//
//	s, err := mgr.Login(ctx, w, r, userID)   // after credentials are checked
//	r.Handle("/v1/*", mgr.RequireAuth(api)) // 401 {"code":"session.expired",...}
//
// # Lifetime
//
// Verification refreshes LastActivityAt and rewrites the record with its
// remaining TTL, so a session always ends at the ExpiresAt set by Create.
// Revoke marks the record revoked and removes it from the user's set; the
// record itself stays readable until it expires.
//
// Create enforces Config.MaxConcurrent: once a user holds more active
// sessions than that, the oldest by creation time are revoked, keeping the
// new session and the newest MaxConcurrent-1 others.
//
// # Failure modes
//
// Without the cache the store falls back to process memory, which is only
// correct for a single instance. A cache command error while verifying
// rejects the request: an unverifiable session is treated as absent.
package session
