package ratelimit

import (
	"time"

	"github.com/inkpress/coord/pkg/clientip"
)

// Rule is the policy of one endpoint class.
type Rule struct {
	Window time.Duration `env:"WINDOW"`
	Limit  int           `env:"LIMIT"`
	// Backoff enables progressive backoff on rejections. Nil uses the
	// class default.
	Backoff          *bool `env:"BACKOFF"`
	MaxBackoffFactor int   `env:"MAX_BACKOFF_FACTOR"`
	// SuspiciousFactor is the over-limit factor above which a hit is
	// recorded as suspicious. Zero uses the class default and a negative
	// value disables tracking.
	SuspiciousFactor int `env:"SUSPICIOUS_FACTOR"`
	// PerUser adds a hash of the bearer token to the key.
	PerUser bool `env:"PER_USER"`
}

// Validate checks that the rule can be enforced.
func (r Rule) Validate() error {
	if r.Limit <= 0 {
		return ErrInvalidLimit
	}
	if r.Window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}

// BackoffEnabled reports whether rejections get progressive backoff.
func (r Rule) BackoffEnabled() bool {
	return r.Backoff != nil && *r.Backoff
}

// orDefault fills unset fields from def.
func (r Rule) orDefault(def Rule) Rule {
	if r.Window <= 0 {
		r.Window = def.Window
	}
	if r.Limit <= 0 {
		r.Limit = def.Limit
	}
	if r.MaxBackoffFactor <= 0 {
		r.MaxBackoffFactor = def.MaxBackoffFactor
	}
	if r.SuspiciousFactor == 0 {
		r.SuspiciousFactor = def.SuspiciousFactor
	}
	if r.Backoff == nil {
		r.Backoff = def.Backoff
	}
	if !r.PerUser {
		r.PerUser = def.PerUser
	}
	return r
}

// Endpoint classes.
const (
	ClassAuth          = "auth"
	ClassAPI           = "api"
	ClassNotifications = "notifications"
)

// Config is loaded from the environment.
type Config struct {
	Enabled bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Prefix  string `env:"RATE_LIMIT_PREFIX" envDefault:"rl:"`
	// Allowlist is merged with the loopback addresses.
	Allowlist           []string      `env:"RATE_LIMIT_ALLOWLIST" envSeparator:","`
	SweepInterval       time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"60s"`
	SuspiciousRetention time.Duration `env:"RATE_LIMIT_SUSPICIOUS_RETENTION" envDefault:"24h"`
	// SuspiciousLogEvery logs the first suspicious hit of a pair and then
	// every Nth one.
	SuspiciousLogEvery int64 `env:"RATE_LIMIT_SUSPICIOUS_LOG_EVERY" envDefault:"10"`

	Auth          Rule `envPrefix:"RATE_LIMIT_AUTH_"`
	API           Rule `envPrefix:"RATE_LIMIT_API_"`
	Notifications Rule `envPrefix:"RATE_LIMIT_NOTIFICATIONS_"`
}

func enabled(v bool) *bool { return &v }

var defaultRules = map[string]Rule{
	ClassAuth: {
		Window:           15 * time.Minute,
		Limit:            5,
		Backoff:          enabled(true),
		MaxBackoffFactor: 8,
		SuspiciousFactor: 3,
	},
	ClassAPI: {
		Window:           time.Minute,
		Limit:            100,
		Backoff:          enabled(true),
		MaxBackoffFactor: 4,
		SuspiciousFactor: 5,
	},
	ClassNotifications: {
		Window:           time.Minute,
		Limit:            30,
		MaxBackoffFactor: 1,
		SuspiciousFactor: 5,
		PerUser:          true,
	},
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Prefix:              "rl:",
		SweepInterval:       time.Minute,
		SuspiciousRetention: 24 * time.Hour,
		SuspiciousLogEvery:  10,
		Auth:                defaultRules[ClassAuth],
		API:                 defaultRules[ClassAPI],
		Notifications:       defaultRules[ClassNotifications],
	}
}

// Rule returns the rule of an endpoint class with defaults applied.
// Unknown classes get the API rule.
func (c Config) Rule(class string) Rule {
	switch class {
	case ClassAuth:
		return c.Auth.orDefault(defaultRules[ClassAuth])
	case ClassNotifications:
		return c.Notifications.orDefault(defaultRules[ClassNotifications])
	default:
		return c.API.orDefault(defaultRules[ClassAPI])
	}
}

// staticAllowlist is always allowed in addition to RATE_LIMIT_ALLOWLIST.
// Any loopback address is allowed as well.
var staticAllowlist = []string{"127.0.0.1", "::1"}

func (c Config) allowlist() map[string]struct{} {
	set := make(map[string]struct{}, len(staticAllowlist)+len(c.Allowlist))
	for _, ip := range append(staticAllowlist, c.Allowlist...) {
		if n := clientip.Normalize(ip); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
