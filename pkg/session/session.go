package session

import (
	"errors"
	"time"
)

// Status of a session record.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
	StatusInvalid Status = "invalid"
)

// Session is the record kept under session:<id>.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Fingerprint    string    `json:"fingerprint"`
	UserAgent      string    `json:"user_agent,omitempty"`
	IP             string    `json:"ip,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// Token is only set on the value returned by Create.
	Token string `json:"-"`
}

// ActiveAt reports whether the session is usable at now.
func (s *Session) ActiveAt(now time.Time) bool {
	return s != nil && s.Status == StatusActive && now.Before(s.ExpiresAt)
}

// remaining is the TTL the record keeps when rewritten at now.
func (s *Session) remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// statusError maps a non-active status to its rejection error.
func statusError(st Status) error {
	switch st {
	case StatusActive:
		return nil
	case StatusRevoked:
		return ErrSessionRevoked
	case StatusExpired:
		return ErrSessionExpired
	default:
		return ErrInvalidSession
	}
}

// isRejection reports errors that mean the session must not be used.
func isRejection(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrInvalidSession)
}

// claims is the payload of a session token.
type claims struct {
	SessionID string `json:"sid"`
}
