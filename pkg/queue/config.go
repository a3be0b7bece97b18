package queue

import "time"

// Config holds the delayed job queue configuration.
type Config struct {
	// Prefix namespaces every queue key in the coordination cache.
	Prefix string `env:"QUEUE_PREFIX" envDefault:"queue:"`

	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"4"`

	// MaxRetries bounds handler attempts after the first before a task is
	// dead-lettered.
	MaxRetries int `env:"QUEUE_MAX_RETRIES" envDefault:"5"`
	// Retry delays grow as RetryBaseDelay*2^(n-1), capped at RetryMaxDelay.
	RetryBaseDelay time.Duration `env:"QUEUE_RETRY_BASE_DELAY" envDefault:"10s"`
	RetryMaxDelay  time.Duration `env:"QUEUE_RETRY_MAX_DELAY" envDefault:"10m"`

	SchedulerInterval time.Duration `env:"QUEUE_SCHEDULER_INTERVAL" envDefault:"30s"`
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:             "queue:",
		PollInterval:       time.Second,
		LockTimeout:        5 * time.Minute,
		MaxConcurrentTasks: 4,
		MaxRetries:         5,
		RetryBaseDelay:     10 * time.Second,
		RetryMaxDelay:      10 * time.Minute,
		SchedulerInterval:  30 * time.Second,
	}
}

// RetryDelay returns the delay before retry attempt n (1-based).
func (c Config) RetryDelay(n int) time.Duration {
	if n < 1 || c.RetryBaseDelay <= 0 {
		return 0
	}
	d := c.RetryBaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if c.RetryMaxDelay > 0 && d >= c.RetryMaxDelay {
			return c.RetryMaxDelay
		}
	}
	if c.RetryMaxDelay > 0 {
		return min(d, c.RetryMaxDelay)
	}
	return d
}
