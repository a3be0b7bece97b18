// Package handler turns typed request handlers into http.HandlerFunc.
//
// A handler receives a Context and a request struct filled by binders
// (BindJSON, BindQuery, BindPath) and returns a Response. JSON and
// JSONError render the {data, meta, error} envelope used by every API
// route. Handlers return Error(err) for failures; NewErrorHandler maps
// them onto HTTP statuses through ErrorMapper values.
//
//	r.Delete("/v1/notifications/{id}", handler.Wrap(deleteNotification,
//		handler.WithBinders[handler.Context, DeleteRequest](handler.BindPath(chi.URLParam)),
//		handler.WithErrorHandler[handler.Context, DeleteRequest](errs),
//	))
package handler
