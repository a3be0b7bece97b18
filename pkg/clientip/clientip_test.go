package clientip_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkpress/coord/pkg/clientip"
)

func TestGetIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:5123",
			want:       "192.0.2.10",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
		{
			name: "cdn header wins over everything",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.7",
				"X-Forwarded-For":  "198.51.100.1",
				"X-Real-IP":        "198.51.100.2",
			},
			remoteAddr: "10.0.0.1:80",
			want:       "203.0.113.7",
		},
		{
			name: "forwarded-for before platform header",
			headers: map[string]string{
				"X-Forwarded-For": "198.51.100.1, 10.0.0.2",
				"X-Real-IP":       "198.51.100.2",
			},
			remoteAddr: "10.0.0.1:80",
			want:       "198.51.100.1",
		},
		{
			name: "forwarded-for skips garbage entries",
			headers: map[string]string{
				"X-Forwarded-For": "unknown, not-an-ip , 198.51.100.9",
			},
			remoteAddr: "10.0.0.1:80",
			want:       "198.51.100.9",
		},
		{
			name:       "platform header",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			remoteAddr: "10.0.0.1:80",
			want:       "198.51.100.2",
		},
		{
			name:       "invalid cdn header falls through",
			headers:    map[string]string{"CF-Connecting-IP": "<script>"},
			remoteAddr: "10.0.0.1:80",
			want:       "10.0.0.1",
		},
		{
			name:       "ipv6 is normalized",
			headers:    map[string]string{"CF-Connecting-IP": "2001:DB8:0:0:0:0:0:1"},
			remoteAddr: "10.0.0.1:80",
			want:       "2001:db8::1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[::1]:8080",
			want:       "::1",
		},
		{
			name:       "garbage remote addr",
			remoteAddr: "nonsense",
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, clientip.GetIP(req))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var got string
	h := clientip.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = clientip.GetIPFromContext(r.Context())
		assert.Equal(t, got, clientip.FromRequest(r))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.4", got)
}

func TestFromRequestWithoutMiddleware(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1"
	assert.Equal(t, "192.0.2.1", clientip.FromRequest(req))
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()

	assert.True(t, clientip.IsLoopback("127.0.0.1"))
	assert.True(t, clientip.IsLoopback("::1"))
	assert.False(t, clientip.IsLoopback("192.0.2.1"))
	assert.False(t, clientip.IsLoopback("bogus"))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	ex := clientip.LoggerExtractor()

	_, ok := ex(context.Background())
	assert.False(t, ok)

	attr, ok := ex(clientip.SetIPToContext(context.Background(), "192.0.2.1"))
	assert.True(t, ok)
	assert.Equal(t, "ip", attr.Key)

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("x", attr)
	assert.Contains(t, buf.String(), "ip=192.0.2.1")
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10.0.0.1", clientip.Normalize(" 10.0.0.1 "))
	assert.Equal(t, "127.0.0.1", clientip.Normalize("::ffff:127.0.0.1"))
	assert.Equal(t, "", clientip.Normalize("10.0.0"))
}
