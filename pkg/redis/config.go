package redis

import "time"

type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                                 // ConnectionURL in the form "redis://:password@localhost:6379/0". Empty means the cache is absent.
	Enabled        bool          `env:"CACHE_ENABLED" envDefault:"true"`           // Enabled toggles the coordination cache as a whole; false keeps every component in degraded mode.
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`       // RetryAttempts is the number of dial attempts per connect.
	MinRetryDelay  time.Duration `env:"REDIS_MIN_RETRY_DELAY" envDefault:"50ms"`   // MinRetryDelay is the first backoff step between dial attempts.
	MaxRetryDelay  time.Duration `env:"REDIS_MAX_RETRY_DELAY" envDefault:"1s"`     // MaxRetryDelay caps the exponential backoff between dial attempts and command retries.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`    // ConnectTimeout bounds a whole connect cycle.
	RebuildDelay   time.Duration `env:"REDIS_REBUILD_DELAY" envDefault:"5s"`       // RebuildDelay is how long Get keeps returning nil after a failed connect.

	HealthcheckEnabled  bool          `env:"REDIS_HEALTHCHECK_ENABLED" envDefault:"true"`
	HealthcheckInterval time.Duration `env:"REDIS_HEALTHCHECK_INTERVAL" envDefault:"30s"`
}

// DefaultConfig returns the configuration used when nothing is loaded from env.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		RetryAttempts:       3,
		MinRetryDelay:       50 * time.Millisecond,
		MaxRetryDelay:       time.Second,
		ConnectTimeout:      10 * time.Second,
		RebuildDelay:        5 * time.Second,
		HealthcheckEnabled:  true,
		HealthcheckInterval: 30 * time.Second,
	}
}
