package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrEmptyConnectionURL           = errors.New("empty redis connection URL")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
	ErrManagerClosed                = errors.New("redis manager is closed")

	// ErrUnavailable is returned by stores built on a Provider when no
	// client is available. Callers switch to their in-memory fallback.
	ErrUnavailable = errors.New("coordination cache unavailable")
)
