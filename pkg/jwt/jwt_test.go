package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/jwt"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newService(t *testing.T, c *clock) *jwt.Service {
	t.Helper()
	svc, err := jwt.NewFromString("test-secret", jwt.WithIssuer("coord"), jwt.WithClock(c.Now))
	require.NoError(t, err)
	return svc
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := jwt.New(nil)
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)

	_, err = jwt.NewFromString("")
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}

func TestGenerateAndParse(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := newService(t, c)

	token, err := svc.Generate(svc.NewClaims("user-1", 5*time.Minute))
	require.NoError(t, err)

	claims := &jwt.Claims{}
	require.NoError(t, svc.Parse(token, claims))
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "coord", claims.Issuer)
	assert.Equal(t, c.t.Add(5*time.Minute), claims.ExpiresAt.Time)
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	svc := newService(t, c)

	token, err := svc.Generate(svc.NewClaims("user-1", 5*time.Minute))
	require.NoError(t, err)

	c.t = c.t.Add(6 * time.Minute)
	err = svc.Parse(token, &jwt.Claims{})
	assert.ErrorIs(t, err, jwt.ErrExpiredToken)
}

func TestParse_Rejections(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Now()}
	svc := newService(t, c)

	other, err := jwt.NewFromString("other-secret", jwt.WithIssuer("coord"), jwt.WithClock(c.Now))
	require.NoError(t, err)
	forged, err := other.Generate(other.NewClaims("user-1", time.Minute))
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Parse(forged, &jwt.Claims{}), jwt.ErrInvalidSignature)

	assert.ErrorIs(t, svc.Parse("", &jwt.Claims{}), jwt.ErrInvalidToken)
	assert.ErrorIs(t, svc.Parse("not.a.token", &jwt.Claims{}), jwt.ErrInvalidToken)

	none, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, other.NewClaims("user-1", time.Minute)).
		SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.Error(t, svc.Parse(none, &jwt.Claims{}))

	noExp, err := svc.Generate(&jwt.Claims{Subject: "user-1"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Parse(noExp, &jwt.Claims{}), jwt.ErrInvalidToken)

	foreign, err := jwt.NewFromString("test-secret", jwt.WithIssuer("elsewhere"), jwt.WithClock(c.Now))
	require.NoError(t, err)
	wrongIss, err := foreign.Generate(foreign.NewClaims("user-1", time.Minute))
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Parse(wrongIss, &jwt.Claims{}), jwt.ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc := newService(t, &clock{t: time.Now()})
	token, err := svc.Generate(svc.NewClaims("user-1", time.Minute))
	require.NoError(t, err)

	var subject string
	h := jwt.Middleware(jwt.MiddlewareConfig{
		Service:   svc,
		Extractor: jwt.QueryTokenExtractor("token"),
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := jwt.GetClaims[*jwt.Claims](r.Context())
		require.True(t, ok)
		subject = claims.Subject
		raw, _ := jwt.GetToken(r.Context())
		assert.Equal(t, token, raw)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", subject)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+strings.ToUpper(token), nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerTokenExtractor(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := jwt.BearerTokenExtractor(r)
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)

	r.Header.Set("Authorization", "Bearer abc")
	token, err := jwt.BearerTokenExtractor(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, err = jwt.BearerTokenExtractor(r)
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
}
