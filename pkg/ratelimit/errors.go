package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInvalidWindow     = errors.New("invalid window")
	ErrKeyRequired       = errors.New("key is required")
)

// LimitError is the typed rejection returned to callers that enforce a limit
// outside HTTP (the notification pipeline). It wraps ErrRateLimitExceeded.
type LimitError struct {
	Result Result
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.Result.RetryAfter(time.Now()))
}

func (e *LimitError) Unwrap() error { return ErrRateLimitExceeded }
