package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/config"
)

type limiterSection struct {
	Window time.Duration `env:"TEST_LIMITER_WINDOW" envDefault:"1m"`
	Limit  int           `env:"TEST_LIMITER_LIMIT" envDefault:"60"`
}

type serviceConfig struct {
	CacheURL     string `env:"TEST_CACHE_URL" envDefault:"redis://localhost:6379/0"`
	CacheEnabled bool   `env:"TEST_CACHE_ENABLED" envDefault:"true"`
	Limiter      limiterSection
}

type cachedConfig struct {
	SessionTTL time.Duration `env:"TEST_SESSION_TTL" envDefault:"24h"`
}

type channelConfig struct {
	Channel string `env:"TEST_NOTIFY_CHANNEL" envDefault:"notifications"`
}

type secretConfig struct {
	Secret string `env:"TEST_SESSION_SECRET,required"`
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TEST_CACHE_URL", "redis://cache:6379/2")
	t.Setenv("TEST_CACHE_ENABLED", "false")
	t.Setenv("TEST_LIMITER_WINDOW", "15m")

	var cfg serviceConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "redis://cache:6379/2", cfg.CacheURL)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, 15*time.Minute, cfg.Limiter.Window, "nested sections are parsed")
	assert.Equal(t, 60, cfg.Limiter.Limit)
}

func TestLoad_RequiredMissing(t *testing.T) {
	os.Unsetenv("TEST_SESSION_SECRET")

	var cfg secretConfig
	err := config.Load(&cfg)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_CachedPerType(t *testing.T) {
	t.Setenv("TEST_SESSION_TTL", "2h")

	var first cachedConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("TEST_SESSION_TTL", "5h")

	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, 2*time.Hour, second.SessionTTL, "second load returns the cached value")

	var other channelConfig
	require.NoError(t, config.Load(&other))
	assert.Equal(t, "notifications", other.Channel)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *serviceConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}
