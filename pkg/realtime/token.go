package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/inkpress/coord/pkg/jwt"
)

// Token is a signed connection credential.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Tokens issues and verifies connection tokens. The subject is the user id.
type Tokens struct {
	svc *jwt.Service
	ttl time.Duration
}

// NewTokens signs with secret. A non-positive ttl uses five minutes.
func NewTokens(secret, issuer string, ttl time.Duration, opts ...jwt.Option) (*Tokens, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	opts = append([]jwt.Option{jwt.WithIssuer(issuer)}, opts...)
	svc, err := jwt.NewFromString(secret, opts...)
	if err != nil {
		return nil, err
	}
	return &Tokens{svc: svc, ttl: ttl}, nil
}

// Issue returns a token for userID.
func (t *Tokens) Issue(userID string) (Token, error) {
	if userID == "" {
		return Token{}, ErrNoUser
	}
	claims := t.svc.NewClaims(userID, t.ttl)
	value, err := t.svc.Generate(claims)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: value, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify returns the user id of a valid token.
func (t *Tokens) Verify(raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.Claims{}
	if err := t.svc.Parse(raw, claims); err != nil {
		return "", errors.Join(classify(err), err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Middleware rejects requests whose token query parameter is missing,
// malformed or expired before next runs. Accepted requests carry the user
// id, see UserIDFromContext.
func (t *Tokens) Middleware(next http.Handler) http.Handler {
	return jwt.Middleware(jwt.MiddlewareConfig{
		Service:   t.svc,
		Extractor: jwt.QueryTokenExtractor("token"),
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			if r.URL.Query().Get("token") == "" {
				err = ErrMissingToken
			}
			writeRejection(w, classify(err))
		},
	})(next)
}

// UserIDFromContext returns the subject of the token accepted by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := jwt.GetClaims[*jwt.Claims](ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrMissingToken):
		return ErrMissingToken
	case errors.Is(err, jwt.ErrExpiredToken):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}
