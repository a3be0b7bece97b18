package realtime

import "time"

// Config is loaded from the environment.
type Config struct {
	TokenSecret    string        `env:"REALTIME_TOKEN_SECRET,required"`
	TokenIssuer    string        `env:"REALTIME_TOKEN_ISSUER" envDefault:"coord"`
	TokenTTL       time.Duration `env:"REALTIME_TOKEN_TTL" envDefault:"5m"`
	Channel        string        `env:"REALTIME_CHANNEL" envDefault:"notifications"`
	MaxUsers       int           `env:"REALTIME_MAX_USERS" envDefault:"10000"`
	BufferSize     int           `env:"REALTIME_BUFFER_SIZE" envDefault:"32"`
	WriteTimeout   time.Duration `env:"REALTIME_WRITE_TIMEOUT" envDefault:"10s"`
	PingInterval   time.Duration `env:"REALTIME_PING_INTERVAL" envDefault:"50s"`
	ResubscribeGap time.Duration `env:"REALTIME_RESUBSCRIBE_DELAY" envDefault:"2s"`
	AllowedOrigins []string      `env:"REALTIME_ALLOWED_ORIGINS" envSeparator:","`
}

func DefaultConfig() Config {
	return Config{
		TokenIssuer:    "coord",
		TokenTTL:       5 * time.Minute,
		Channel:        "notifications",
		MaxUsers:       10000,
		BufferSize:     32,
		WriteTimeout:   10 * time.Second,
		PingInterval:   50 * time.Second,
		ResubscribeGap: 2 * time.Second,
	}
}
