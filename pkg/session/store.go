package session

import (
	"context"
	"time"
)

// Store persists session records.
//
// Save writes s with the given TTL and, for active sessions, adds its id to
// the user's index. Touch sets LastActivityAt on the stored record only
// while it is still active and keeps its TTL; on any other status it
// returns the matching rejection error and writes nothing. Unindex removes
// an id from the user's index without touching the record, so revoked
// sessions stay inspectable until they expire.
type Store interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Unindex(ctx context.Context, userID string, ids ...string) error
	UserSessions(ctx context.Context, userID string) ([]string, error)
}
