package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	request        func(*http.Request) Request
	onLimitReached func(w http.ResponseWriter, r *http.Request, res Result)
	skip           func(r *http.Request) bool
}

// WithRequestFunc replaces the default Request extraction.
func WithRequestFunc(fn func(*http.Request) Request) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.request = fn
		}
	}
}

// WithOnLimitReached replaces the default JSON 429 response. Headers,
// including Retry-After, are already set when fn runs.
func WithOnLimitReached(fn func(w http.ResponseWriter, r *http.Request, res Result)) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.onLimitReached = fn
		}
	}
}

// WithSkipFunc exempts requests for which fn returns true.
func WithSkipFunc(fn func(r *http.Request) bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.skip = fn
	}
}

// Middleware enforces the rule of class on every request. It writes the
// X-RateLimit-* headers and, on rejection, a Retry-After that includes the
// progressive backoff factor. It fails open: a request is never rejected
// because the limiter could not decide.
func Middleware(l *Limiter, class string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		request:        RequestFromHTTP,
		onLimitReached: writeLimitReached,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skip != nil && cfg.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Check(r.Context(), class, cfg.request(r))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			SetHeaders(w.Header(), res, l.now())

			if !res.Allowed {
				cfg.onLimitReached(w, r, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the rate-limit headers of res.
func SetHeaders(h http.Header, res Result, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(res.RetryAfter(now)/time.Second)))
	}
}

// ErrorBody is the JSON body of a rejected request.
type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

func writeLimitReached(w http.ResponseWriter, _ *http.Request, _ Result) {
	retryAfter, _ := strconv.Atoi(w.Header().Get("Retry-After"))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(ErrorBody{
		Code:       "rate_limited",
		Message:    "Too many requests, please retry later.",
		RetryAfter: retryAfter,
	})
}
