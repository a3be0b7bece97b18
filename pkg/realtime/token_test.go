package realtime_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/jwt"
	"github.com/inkpress/coord/pkg/realtime"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokens_IssueVerify(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	tokens, err := realtime.NewTokens("secret", "coord", 5*time.Minute, jwt.WithClock(clock.Now))
	require.NoError(t, err)

	tok, err := tokens.Issue("user-1")
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Minute), tok.ExpiresAt)

	userID, err := tokens.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	clock.Advance(5*time.Minute + time.Second)
	_, err = tokens.Verify(tok.Value)
	assert.ErrorIs(t, err, realtime.ErrTokenExpired)
}

func TestTokens_Rejections(t *testing.T) {
	t.Parallel()

	tokens, err := realtime.NewTokens("secret", "coord", time.Minute)
	require.NoError(t, err)

	_, err = tokens.Verify("")
	assert.ErrorIs(t, err, realtime.ErrMissingToken)

	_, err = tokens.Verify("garbage")
	assert.ErrorIs(t, err, realtime.ErrInvalidToken)

	other, err := realtime.NewTokens("other", "coord", time.Minute)
	require.NoError(t, err)
	tok, err := other.Issue("user-1")
	require.NoError(t, err)
	_, err = tokens.Verify(tok.Value)
	assert.ErrorIs(t, err, realtime.ErrInvalidToken)

	_, err = tokens.Issue("")
	assert.ErrorIs(t, err, realtime.ErrNoUser)

	_, err = realtime.NewTokens("", "coord", time.Minute)
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
}
