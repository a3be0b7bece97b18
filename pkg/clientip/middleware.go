package clientip

import "net/http"

// Middleware resolves the client IP once per request and stores it in the
// request context for the rate limiter, session fingerprinting and logs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetIPToContext(r.Context(), GetIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromRequest returns the IP stored by Middleware, resolving it from the
// request when the middleware did not run.
func FromRequest(r *http.Request) string {
	if ip := GetIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return GetIP(r)
}
