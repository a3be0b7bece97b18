package session

import "time"

// Config holds session configuration.
type Config struct {
	// Secret signs session tokens.
	Secret string `env:"SESSION_SECRET"`
	// FingerprintSecret keys the client fingerprint hash.
	FingerprintSecret string `env:"SESSION_FINGERPRINT_SECRET"`

	TTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	// MaxConcurrent is the number of active sessions a user may hold. Create
	// revokes the oldest ones beyond it. Zero disables the limit.
	MaxConcurrent int `env:"SESSION_MAX_CONCURRENT" envDefault:"5"`

	CookieName    string `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	SecureCookies bool   `env:"SESSION_SECURE_COOKIES" envDefault:"false"`

	// CleanupInterval sweeps the in-memory store used without the cache.
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`
}

// DefaultConfig returns default session configuration.
func DefaultConfig() Config {
	return Config{
		TTL:             30 * 24 * time.Hour,
		MaxConcurrent:   5,
		CookieName:      "sid",
		CleanupInterval: 5 * time.Minute,
	}
}
