package viewcount

import "time"

// Config is loaded from the environment.
type Config struct {
	Key        string        `env:"VIEWCOUNT_BUFFER_KEY" envDefault:"views:pending"`
	BatchSize  int           `env:"VIEWCOUNT_BATCH_SIZE" envDefault:"100"`
	BatchDelay time.Duration `env:"VIEWCOUNT_BATCH_DELAY" envDefault:"100ms"`
	// SyncHours are the two local hours the sync job runs at.
	SyncHours []int `env:"VIEWCOUNT_SYNC_HOURS" envSeparator:"," envDefault:"3,15"`
}

func DefaultConfig() Config {
	return Config{
		Key:        "views:pending",
		BatchSize:  100,
		BatchDelay: 100 * time.Millisecond,
		SyncHours:  []int{3, 15},
	}
}
