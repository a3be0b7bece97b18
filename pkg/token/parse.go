package token

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Parse verifies tok and decodes its payload. Every failure wraps
// ErrInvalidToken; a bad signature additionally wraps ErrSignatureInvalid.
func Parse[T any](s *Signer, tok string) (T, error) {
	var payload T

	encData, encSig, ok := strings.Cut(tok, ".")
	if !ok || encData == "" || encSig == "" || strings.Contains(encSig, ".") {
		return payload, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(encData)
	if err != nil {
		return payload, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return payload, ErrInvalidToken
	}

	if !hmac.Equal(sig, s.mac(data)) {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, ErrInvalidToken
	}
	return payload, nil
}
