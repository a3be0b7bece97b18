package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/inkpress/coord/pkg/clientip"
)

// ErrEmptySecret is returned by New when no key is given.
var ErrEmptySecret = errors.New("fingerprint: secret must not be empty")

// Components are the request attributes a fingerprint binds to.
type Components struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
}

// FromRequest extracts the fingerprint components of r. The client IP comes
// from the clientip middleware when it ran.
func FromRequest(r *http.Request) Components {
	return Components{
		IP:             clientip.FromRequest(r),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}
}

// Hasher computes keyed fingerprints. The key keeps fingerprints unforgeable
// by clients that know their own IP and headers.
type Hasher struct {
	secret []byte
}

func New(secret []byte) (*Hasher, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &Hasher{secret: append([]byte(nil), secret...)}, nil
}

// Compute returns the hex HMAC-SHA256 of c.
func (h *Hasher) Compute(c Components) string {
	mac := hmac.New(sha256.New, h.secret)
	// Fields are length-delimited by the separator, which cannot occur in
	// an IP address.
	mac.Write([]byte(c.IP))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.TrimSpace(c.UserAgent)))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(c.AcceptLanguage))))
	return hex.EncodeToString(mac.Sum(nil))
}

// Generate fingerprints r.
func (h *Hasher) Generate(r *http.Request) string {
	return h.Compute(FromRequest(r))
}

// Match reports whether r produces the stored fingerprint, in constant time.
func (h *Hasher) Match(r *http.Request, stored string) bool {
	if stored == "" {
		return false
	}
	return hmac.Equal([]byte(h.Generate(r)), []byte(stored))
}
