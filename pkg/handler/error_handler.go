package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/inkpress/coord/pkg/logger"
)

// ErrorMapper translates a domain error into an HTTPError. It reports false
// for errors it does not know.
type ErrorMapper func(err error) (HTTPError, bool)

// Map returns a mapper for one sentinel.
func Map(target error, to HTTPError) ErrorMapper {
	return func(err error) (HTTPError, bool) {
		if errors.Is(err, target) {
			return to, true
		}
		return HTTPError{}, false
	}
}

// NewErrorHandler logs err and renders it as JSON. Mappers run in order
// before the built-in classification; the first match wins.
func NewErrorHandler(log *slog.Logger, mappers ...ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx Context, err error) {
		_ = respond(ctx, log, err, mappers).Render(ctx.ResponseWriter(), ctx.Request())
	}
}

// Error returns a response that hands err to the error handler of Wrap.
func Error(err error) Response { return errorResponse{err: err} }

type errorResponse struct{ err error }

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error { return e.err }

func respond(ctx Context, log *slog.Logger, err error, mappers []ErrorMapper) Response {
	mapped := err
	for _, m := range mappers {
		if he, ok := m(err); ok {
			mapped = he
			break
		}
	}

	status, _ := classify(mapped)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	r := ctx.Request()
	log.LogAttrs(ctx, level, "request error",
		logger.Error(err),
		slog.Int("status_code", status),
		slog.String("method", r.Method),
		logger.Path(r.URL.Path),
		logger.Component("handler"),
	)
	return JSONError(mapped)
}
