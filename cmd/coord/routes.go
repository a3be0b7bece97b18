package main

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkpress/coord/pkg/clientip"
	"github.com/inkpress/coord/pkg/handler"
	"github.com/inkpress/coord/pkg/httpserver"
	"github.com/inkpress/coord/pkg/metrics"
	"github.com/inkpress/coord/pkg/middleware"
	"github.com/inkpress/coord/pkg/ratelimit"
	"github.com/inkpress/coord/pkg/realtime"
	"github.com/inkpress/coord/pkg/requestid"
	"github.com/inkpress/coord/pkg/session"
)

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Chain(
		requestid.Middleware,
		clientip.Middleware,
		middleware.Logging(a.log),
	))

	r.Get("/live", httpserver.LivenessHandler())
	r.Get("/ready", httpserver.ReadinessHandler(a.log, 2*time.Second, a.checks...))
	r.Handle("/metrics", metrics.Handler(a.gatherer))

	limit := func(class string) middleware.Middleware {
		return ratelimit.Middleware(a.limiter, class)
	}
	authed := func(class string) middleware.Middleware {
		return middleware.Chain(limit(class), a.sessions.RequireAuth)
	}
	errs := a.errorMappers()

	r.Route("/v1", func(r chi.Router) {
		if a.devLogin {
			r.With(limit(ratelimit.ClassAuth)).Post("/dev/login", wrap(a.devLoginHandler, errs, handler.BindJSON()))
		}

		// The socket authenticates with its connection token, not the session.
		r.With(limit(ratelimit.ClassAPI)).Method(http.MethodGet, "/realtime/ws", a.ws.Handler())
		r.With(authed(ratelimit.ClassAPI)).Method(http.MethodPost, "/realtime/token",
			realtime.TokenHandler(a.tokens, func(r *http.Request) (string, bool) {
				return session.UserIDFromContext(r.Context())
			}))

		r.With(limit(ratelimit.ClassAPI), a.sessions.Middleware).
			Post("/stories/{id}/view", wrap(a.recordView, errs, handler.BindPath(chi.URLParam)))

		r.Route("/notifications", func(r chi.Router) {
			r.Use(authed(ratelimit.ClassNotifications))
			r.Get("/", wrap(a.listNotifications, errs, handler.BindQuery()))
			r.Get("/unread-count", wrap(a.unreadCount, errs))
			r.Post("/read", wrap(a.markRead, errs, handler.BindJSON()))
			r.Delete("/{id}", wrap(a.deleteNotification, errs, handler.BindPath(chi.URLParam)))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(authed(ratelimit.ClassAPI))
			r.Get("/", wrap(a.listSessions, errs))
			r.Delete("/{id}", wrap(a.revokeSession, errs, handler.BindPath(chi.URLParam)))
			r.Post("/revoke-others", wrap(a.revokeOtherSessions, errs))
			r.Post("/logout", wrap(a.logout, errs))
		})
	})

	if a.adminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(limit(ratelimit.ClassAPI), requireAdmin(a.adminToken))
			r.Post("/jobs/viewcount", wrap(a.runViewSync, errs))
			r.Post("/notifications", wrap(a.createNotifications, errs, handler.BindJSON()))
			r.Post("/users/{id}/recount", wrap(a.recountUnread, errs, handler.BindPath(chi.URLParam)))
			r.Get("/queue/dead-letters", wrap(a.listDeadLetters, errs, handler.BindQuery()))
			r.Post("/queue/dead-letters/{id}/requeue", wrap(a.requeueDeadLetter, errs, handler.BindPath(chi.URLParam)))
			r.Get("/ratelimit/suspicious", wrap(a.suspiciousActivity, errs, handler.BindQuery()))
		})
	}

	return r
}

// wrap adapts a typed handler with the shared JSON error handler.
func wrap[R any](h handler.HandlerFunc[handler.Context, R], errs handler.ErrorHandler[handler.Context], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](errs),
	)
}

// requireAdmin accepts requests carrying "Authorization: Bearer <token>".
func requireAdmin(token string) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := ratelimit.BearerToken(r)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				_ = handler.JSONError(handler.ErrUnauthorized).Render(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
