// Package token signs small JSON payloads with HMAC-SHA256.
//
// Token format: base64url(payload).base64url(signature). The session manager
// uses it for opaque session tokens that carry only the session id; the
// rate limiter uses Hash to key per-user counters without storing the
// credential itself.
//
//	signer, err := token.NewSigner(cfg.Secret)
//	tok, err := token.Sign(signer, sessionClaims{SessionID: id})
//	claims, err := token.Parse[sessionClaims](signer, tok)
//
// Parse returns an error wrapping ErrInvalidToken for any malformed or
// tampered token, so callers need a single errors.Is check.
package token
