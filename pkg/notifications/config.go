package notifications

import (
	"time"

	"github.com/inkpress/coord/pkg/ratelimit"
)

// Config is loaded from the environment.
type Config struct {
	CacheEnabled     bool          `env:"NOTIFICATIONS_CACHE_ENABLED" envDefault:"true"`
	RateLimitEnabled bool          `env:"NOTIFICATIONS_RATE_LIMIT_ENABLED" envDefault:"true"`
	ListCacheTTL     time.Duration `env:"NOTIFICATIONS_LIST_CACHE_TTL" envDefault:"30s"`
	CountCacheTTL    time.Duration `env:"NOTIFICATIONS_COUNT_CACHE_TTL" envDefault:"60s"`
	CachePrefix      string        `env:"NOTIFICATIONS_CACHE_PREFIX" envDefault:"notif:"`
	Channel          string        `env:"NOTIFICATIONS_CHANNEL" envDefault:"notifications"`
	RateLimitPrefix  string        `env:"NOTIFICATIONS_RATE_LIMIT_PREFIX" envDefault:"rl:notif:"`
	RateLimitWindow  time.Duration `env:"NOTIFICATIONS_RATE_LIMIT_WINDOW" envDefault:"1m"`
	// EmailTypes lists the types that are also sent by email.
	EmailTypes []Type `env:"NOTIFICATIONS_EMAIL_TYPES" envSeparator:"," envDefault:"payment"`
}

func DefaultConfig() Config {
	return Config{
		CacheEnabled:     true,
		RateLimitEnabled: true,
		ListCacheTTL:     30 * time.Second,
		CountCacheTTL:    time.Minute,
		CachePrefix:      "notif:",
		Channel:          DefaultChannel,
		RateLimitPrefix:  "rl:notif:",
		RateLimitWindow:  time.Minute,
		EmailTypes:       []Type{TypePayment},
	}
}

// creationLimits is the number of notifications of a type one user may
// receive per window. Types not listed are unlimited.
var creationLimits = map[Type]int{
	TypeComment:          20,
	TypeReply:            20,
	TypeLike:             50,
	TypeFollow:           30,
	TypeChapterPublished: 5,
	TypePayment:          10,
}

// CreationRule returns the rate-limit rule for t and false when t is unlimited.
func (c Config) CreationRule(t Type) (ratelimit.Rule, bool) {
	limit, ok := creationLimits[t]
	if !ok {
		return ratelimit.Rule{}, false
	}
	window := c.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return ratelimit.Rule{Window: window, Limit: limit, MaxBackoffFactor: 1}, true
}
