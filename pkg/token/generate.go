package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// Signer issues and verifies tokens under one secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer. The secret must not be empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign encodes payload as base64url(json).base64url(hmac-sha256).
func Sign[T any](s *Signer, payload T) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Join(ErrEncode, err)
	}
	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(s.mac(data)), nil
}

func (s *Signer) mac(data []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(data)
	return h.Sum(nil)
}

// Hash returns a stable, non-reversible 16-byte hex digest of value. It is
// used to put opaque credentials into cache keys.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:16])
}
