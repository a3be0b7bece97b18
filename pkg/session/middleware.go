package session

import (
	"encoding/json"
	"net/http"
)

// Middleware verifies the session of each request and, when valid, stores
// it in the request context. Requests without a valid session pass through.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Verify(r.Context(), r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireAuth rejects requests without a valid session with a JSON 401
// carrying the rejection code.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		s, err := m.Verify(r.Context(), r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// ErrorBody is the JSON body of a rejected request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	body := ErrorBody{Code: Code(err), Message: "Authentication required."}
	switch body.Code {
	case ErrSessionExpired.Error():
		body.Message = "Session expired, please sign in again."
	case ErrSessionRevoked.Error():
		body.Message = "Session was signed out."
	case "":
		body.Code = ErrInvalidSession.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}
