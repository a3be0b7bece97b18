// Package middleware composes the HTTP middleware stack and provides the
// request logging middleware.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/inkpress/coord/pkg/clientip"
	"github.com/inkpress/coord/pkg/logger"
)

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Chain composes mws so the first runs outermost. Nil entries are skipped,
// which lets optional layers be wired conditionally.
func Chain(mws ...Middleware) Middleware {
	clean := make(chi.Middlewares, 0, len(mws))
	for _, mw := range mws {
		if mw != nil {
			clean = append(clean, mw)
		}
	}
	return func(next http.Handler) http.Handler {
		if len(clean) == 0 {
			return next
		}
		return chi.Chain(clean...).Handler(next)
	}
}

// Logging logs one line per request after it completes. 5xx responses log
// at error level, 4xx at warn.
func Logging(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			log.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				logger.Path(r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				logger.IP(clientip.FromRequest(r)),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
