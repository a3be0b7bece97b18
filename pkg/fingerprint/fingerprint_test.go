package fingerprint_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/fingerprint"
)

func newRequest(ip, ua, lang string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Language", lang)
	return req
}

func TestNew_RequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := fingerprint.New(nil)
	assert.ErrorIs(t, err, fingerprint.ErrEmptySecret)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	h, err := fingerprint.New([]byte("secret"))
	require.NoError(t, err)

	base := h.Generate(newRequest("192.0.2.1", "Mozilla/5.0", "en-US"))
	assert.Len(t, base, 64)
	assert.Equal(t, base, h.Generate(newRequest("192.0.2.1", "Mozilla/5.0", "en-US")), "stable")
	assert.Equal(t, base, h.Generate(newRequest("192.0.2.1", "Mozilla/5.0", "EN-us")), "language is case-insensitive")

	assert.NotEqual(t, base, h.Generate(newRequest("192.0.2.2", "Mozilla/5.0", "en-US")), "ip")
	assert.NotEqual(t, base, h.Generate(newRequest("192.0.2.1", "curl/8", "en-US")), "user agent")
	assert.NotEqual(t, base, h.Generate(newRequest("192.0.2.1", "Mozilla/5.0", "de-DE")), "language")

	other, err := fingerprint.New([]byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, base, other.Generate(newRequest("192.0.2.1", "Mozilla/5.0", "en-US")), "key")
}

func TestCompute_FieldsDoNotBleed(t *testing.T) {
	t.Parallel()

	h, _ := fingerprint.New([]byte("secret"))
	a := h.Compute(fingerprint.Components{IP: "1.1.1.1", UserAgent: "ab", AcceptLanguage: "c"})
	b := h.Compute(fingerprint.Components{IP: "1.1.1.1", UserAgent: "a", AcceptLanguage: "bc"})
	assert.NotEqual(t, a, b)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	h, _ := fingerprint.New([]byte("secret"))
	req := newRequest("192.0.2.1", "Mozilla/5.0", "en-US")
	stored := h.Generate(req)

	assert.True(t, h.Match(req, stored))
	assert.False(t, h.Match(newRequest("198.51.100.1", "Mozilla/5.0", "en-US"), stored))
	assert.False(t, h.Match(req, ""))
}

func TestGenerate_UsesResolvedIP(t *testing.T) {
	t.Parallel()

	h, _ := fingerprint.New([]byte("secret"))

	req := newRequest("10.0.0.1", "Mozilla/5.0", "en-US")
	req.Header.Set("CF-Connecting-IP", "203.0.113.5")

	want := h.Compute(fingerprint.Components{IP: "203.0.113.5", UserAgent: "Mozilla/5.0", AcceptLanguage: "en-US"})
	assert.Equal(t, want, h.Generate(req))
}
