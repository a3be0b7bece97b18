package session

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/coord/pkg/clientip"
	"github.com/inkpress/coord/pkg/fingerprint"
	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/token"
)

// Manager creates and verifies fingerprinted sessions.
type Manager struct {
	cfg       Config
	store     Store
	transport Transport
	signer    *token.Signer
	hasher    *fingerprint.Hasher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the session store. An in-memory store is used by default.
func WithStore(s Store) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithTransport sets how tokens travel. The default reads a bearer
// Authorization header and falls back to the session cookie.
func WithTransport(t Transport) Option {
	return func(m *Manager) {
		if t != nil {
			m.transport = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Manager. cfg.Secret is required; FingerprintSecret defaults
// to Secret.
func New(cfg Config, opts ...Option) (*Manager, error) {
	signer, err := token.NewSigner(cfg.Secret)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	fpSecret := cmp.Or(cfg.FingerprintSecret, cfg.Secret)
	hasher, err := fingerprint.New([]byte(fpSecret))
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}

	m := &Manager{
		cfg:    cfg,
		signer: signer,
		hasher: hasher,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		m.store = NewMemoryStore(cfg.CleanupInterval)
	}
	if m.transport == nil {
		m.transport = NewCompositeTransport(
			NewHeaderTransport("Authorization"),
			NewCookieTransport(cmp.Or(cfg.CookieName, "sid"), cfg.SecureCookies),
		)
	}
	m.logger = m.logger.With(logger.Component("session"))

	return m, nil
}

// Create starts a session for userID bound to the fingerprint of r. ttl <= 0
// uses the configured TTL. The returned session carries its token. When the
// user now holds more than MaxConcurrent sessions the oldest are revoked.
func (m *Manager) Create(ctx context.Context, userID string, r *http.Request, ttl time.Duration) (*Session, error) {
	if userID == "" {
		return nil, ErrUserIDEmpty
	}
	if ttl <= 0 {
		ttl = m.cfg.TTL
	}

	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Fingerprint:    m.hasher.Generate(r),
		UserAgent:      r.UserAgent(),
		IP:             clientip.FromRequest(r),
		Status:         StatusActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}

	tok, err := token.Sign(m.signer, claims{SessionID: s.ID})
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s, ttl); err != nil {
		return nil, err
	}
	s.Token = tok

	if m.cfg.MaxConcurrent > 0 {
		if _, err := m.EnforceConcurrencyLimit(ctx, userID, s.ID, m.cfg.MaxConcurrent); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to enforce concurrent session limit",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	}

	return s, nil
}

// Login creates a session and writes its token to w.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) (*Session, error) {
	s, err := m.Create(ctx, userID, r, 0)
	if err != nil {
		return nil, err
	}
	if err := m.transport.SetToken(w, s.Token, s.remaining(m.now())); err != nil {
		return nil, err
	}
	return s, nil
}

// Verify authenticates r. The checks run in order and stop at the first
// failure: the token must decode, the record must exist, it must be active
// and unexpired, and r must carry the fingerprint recorded at creation.
//
// A fingerprint mismatch rejects the request but leaves the session active.
// Store errors on lookup reject the request. On success LastActivityAt is
// refreshed in place and the record keeps its original expiry.
func (m *Manager) Verify(ctx context.Context, r *http.Request) (*Session, error) {
	tok, err := m.transport.GetToken(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}
	c, err := token.Parse[claims](m.signer, tok)
	if err != nil || c.SessionID == "" {
		return nil, errors.Join(ErrInvalidSession, err)
	}

	s, err := m.store.Get(ctx, c.SessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, err
	case err != nil:
		m.logger.LogAttrs(ctx, slog.LevelWarn, "session lookup failed, rejecting request",
			logger.SessionID(c.SessionID),
			logger.Error(err),
		)
		return nil, errors.Join(ErrInvalidSession, err)
	}

	now := m.now()
	switch {
	case s.Status == StatusRevoked:
		return nil, ErrSessionRevoked
	case s.Status == StatusExpired, s.Status == StatusActive && !now.Before(s.ExpiresAt):
		return nil, ErrSessionExpired
	case s.Status != StatusActive:
		return nil, ErrInvalidSession
	}

	if !m.hasher.Match(r, s.Fingerprint) {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "session fingerprint mismatch",
			logger.SessionID(s.ID),
			logger.UserID(s.UserID),
			logger.IP(clientip.FromRequest(r)),
		)
		return nil, ErrFingerprintMismatch
	}

	// The record may have been revoked since it was read; Touch writes only
	// while it is still active.
	switch err := m.store.Touch(ctx, s.ID, now); {
	case isRejection(err):
		return nil, err
	case err != nil:
		m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to record session activity",
			logger.SessionID(s.ID),
			logger.Error(err),
		)
	}

	s.LastActivityAt = now
	return s, nil
}

// Revoke marks the session revoked and drops it from its user's index. The
// record stays readable until it expires.
func (m *Manager) Revoke(ctx context.Context, id string) error {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return m.revoke(ctx, s)
}

// RevokeAll revokes every active session of userID except the one with id
// except, which may be empty. It returns the number revoked.
func (m *Manager) RevokeAll(ctx context.Context, userID, except string) (int, error) {
	active, err := m.activeSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	var revoked int
	for _, s := range active {
		if s.ID == except {
			continue
		}
		if err := m.revoke(ctx, s); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// EnforceConcurrencyLimit keeps at most limit active sessions for userID:
// the session currentID plus the newest limit-1 others by creation time. The
// rest are revoked. It returns the number revoked; limit <= 0 disables it.
func (m *Manager) EnforceConcurrencyLimit(ctx context.Context, userID, currentID string, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	active, err := m.activeSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(active) <= limit {
		return 0, nil
	}

	others := slices.DeleteFunc(slices.Clone(active), func(s *Session) bool { return s.ID == currentID })
	keep := limit
	if len(others) < len(active) {
		keep = limit - 1
	}

	var revoked int
	for _, s := range others[:len(others)-keep] {
		if err := m.revoke(ctx, s); err != nil {
			return revoked, err
		}
		revoked++
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "concurrent session limit enforced",
		logger.UserID(userID),
		logger.Count(int64(revoked)),
		slog.Int("limit", limit),
	)
	return revoked, nil
}

// List returns the active sessions of userID, newest first.
func (m *Manager) List(ctx context.Context, userID string) ([]*Session, error) {
	active, err := m.activeSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(active)
	return active, nil
}

// Logout revokes the session whose token r carries and clears the token
// from w. A missing or unknown session is not an error.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer func() { _ = m.transport.ClearToken(w) }()

	tok, err := m.transport.GetToken(r)
	if err != nil {
		return nil
	}
	c, err := token.Parse[claims](m.signer, tok)
	if err != nil {
		return nil
	}
	if err := m.Revoke(ctx, c.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

func (m *Manager) revoke(ctx context.Context, s *Session) error {
	if s.Status == StatusActive {
		s.Status = StatusRevoked
		if err := m.store.Save(ctx, s, s.remaining(m.now())); err != nil {
			return err
		}
	}
	return m.store.Unindex(ctx, s.UserID, s.ID)
}

// activeSessions loads the user's indexed sessions ordered oldest first and
// drops ids whose records are gone or no longer active.
func (m *Manager) activeSessions(ctx context.Context, userID string) ([]*Session, error) {
	if userID == "" {
		return nil, ErrUserIDEmpty
	}
	ids, err := m.store.UserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	active := make([]*Session, 0, len(ids))
	var stale []string
	for _, id := range ids {
		s, err := m.store.Get(ctx, id)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			stale = append(stale, id)
			continue
		case err != nil:
			return nil, err
		}
		if !s.ActiveAt(now) {
			stale = append(stale, id)
			continue
		}
		active = append(active, s)
	}

	if len(stale) > 0 {
		if err := m.store.Unindex(ctx, userID, stale...); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelDebug, "failed to prune session index",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	}

	slices.SortFunc(active, func(a, b *Session) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return active, nil
}
