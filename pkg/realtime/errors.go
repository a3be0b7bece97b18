package realtime

import "errors"

var (
	ErrMissingToken = errors.New("realtime.missing_token")
	ErrInvalidToken = errors.New("realtime.invalid_token")
	ErrTokenExpired = errors.New("realtime.token_expired")
	ErrNoUser       = errors.New("realtime.no_user")
	ErrHubClosed    = errors.New("realtime.hub_closed")
)
