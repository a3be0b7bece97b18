package session

import "errors"

var (
	// ErrInvalidSession is returned for missing, malformed or tampered
	// tokens and when the session cannot be checked.
	ErrInvalidSession      = errors.New("session.invalid")
	ErrSessionNotFound     = errors.New("session.not_found")
	ErrSessionExpired      = errors.New("session.expired")
	ErrSessionRevoked      = errors.New("session.revoked")
	ErrFingerprintMismatch = errors.New("session.fingerprint_mismatch")

	ErrNoToken       = errors.New("session.no_token")
	ErrUserIDEmpty   = errors.New("session.user_id_required")
	ErrInvalidConfig = errors.New("session.invalid_config")
)

// Code returns the machine-readable code of a session rejection, or "" when
// err is not one.
func Code(err error) string {
	for _, target := range []error{
		ErrFingerprintMismatch,
		ErrSessionRevoked,
		ErrSessionExpired,
		ErrSessionNotFound,
		ErrInvalidSession,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}
