package ratelimit

import (
	"net/http"
	"strings"

	"github.com/inkpress/coord/pkg/clientip"
	"github.com/inkpress/coord/pkg/token"
)

// Request is what the limiter needs to know about an incoming request.
type Request struct {
	IP   string
	Path string
	// AuthToken is the caller's credential. It is hashed into the key when
	// the rule is per-user and never stored.
	AuthToken string
}

// RequestFromHTTP builds a Request using the resolved client IP and the
// bearer token, if any.
func RequestFromHTTP(r *http.Request) Request {
	return Request{
		IP:        clientip.FromRequest(r),
		Path:      r.URL.Path,
		AuthToken: BearerToken(r),
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Key derives the counter key: prefix + ip + ":" + path, followed by
// ":user:" + hash(token) when perUser is set and a token is present.
func Key(prefix string, req Request, perUser bool) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(req.IP) + len(req.Path) + 40)
	b.WriteString(prefix)
	b.WriteString(req.IP)
	b.WriteByte(':')
	b.WriteString(req.Path)
	if perUser && req.AuthToken != "" {
		b.WriteString(":user:")
		b.WriteString(token.Hash(req.AuthToken))
	}
	return b.String()
}

func suspiciousKey(prefix string, req Request) string {
	return prefix + "suspicious:" + req.IP + ":" + req.Path
}
