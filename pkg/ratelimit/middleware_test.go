package ratelimit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/ratelimit"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	cfg := ratelimit.DefaultConfig()
	cfg.Auth = ratelimit.Rule{Window: time.Minute, Limit: 2, Backoff: boolPtr(true), MaxBackoffFactor: 5}
	l, clk := newLimiter(t, cfg)

	h := ratelimit.Middleware(l, ratelimit.ClassAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/login", nil)
		req.RemoteAddr = "203.0.113.50:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(clk.Now().Add(time.Minute).Unix(), 10), rec.Header().Get("X-RateLimit-Reset"))

	do()
	do()
	rec = do() // 4th hit: factor ceil(4/2) = 2
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "120", rec.Header().Get("Retry-After"))

	var body ratelimit.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body.Code)
	assert.Equal(t, 120, body.RetryAfter)
}

func TestMiddleware_SkipAndCustomHandler(t *testing.T) {
	t.Parallel()

	cfg := ratelimit.DefaultConfig()
	cfg.API = ratelimit.Rule{Window: time.Minute, Limit: 1}
	l, _ := newLimiter(t, cfg)

	h := ratelimit.Middleware(l, ratelimit.ClassAPI,
		ratelimit.WithSkipFunc(func(r *http.Request) bool { return r.URL.Path == "/live" }),
		ratelimit.WithOnLimitReached(func(w http.ResponseWriter, r *http.Request, res ratelimit.Result) {
			w.WriteHeader(http.StatusTeapot)
		}),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
		r.RemoteAddr = "192.0.2.77:1"
		return r
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req())
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestKey(t *testing.T) {
	t.Parallel()

	req := ratelimit.Request{IP: "192.0.2.1", Path: "/login", AuthToken: "tok"}
	assert.Equal(t, "rl:192.0.2.1:/login", ratelimit.Key("rl:", req, false))

	perUser := ratelimit.Key("rl:", req, true)
	assert.Regexp(t, `^rl:192\.0\.2\.1:/login:user:[0-9a-f]{32}$`, perUser)
	assert.NotContains(t, perUser, "tok")

	req.AuthToken = ""
	assert.Equal(t, "rl:192.0.2.1:/login", ratelimit.Key("rl:", req, true))
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ratelimit.BearerToken(r))

	r.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", ratelimit.BearerToken(r))

	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Empty(t, ratelimit.BearerToken(r))
}
