package jwt

import "errors"

// Parse and Generate failures. Callers usually only distinguish
// ErrExpiredToken from the rest.
var (
	ErrInvalidToken            = errors.New("jwt: invalid token")
	ErrExpiredToken            = errors.New("jwt: token expired")
	ErrMissingSigningKey       = errors.New("jwt: signing key is empty")
	ErrMissingClaims           = errors.New("jwt: claims are nil")
	ErrInvalidSignature        = errors.New("jwt: signature mismatch")
	ErrUnexpectedSigningMethod = errors.New("jwt: unexpected signing method")
)
