package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/coord/pkg/config"
)

type allowlistConfig struct {
	Allowlist []string `env:"TEST_RL_ALLOWLIST" envSeparator:","`
	Enabled   bool     `env:"TEST_RL_ENABLED" envDefault:"true"`
	Limit     int      `env:"TEST_RL_LIMIT"`
}

func TestLoadEnv_File(t *testing.T) {
	os.Unsetenv("TEST_RL_ALLOWLIST")
	os.Unsetenv("TEST_RL_LIMIT")
	t.Cleanup(func() {
		os.Unsetenv("TEST_RL_ALLOWLIST")
		os.Unsetenv("TEST_RL_LIMIT")
	})

	path := filepath.Join(t.TempDir(), ".env.test")
	require.NoError(t, os.WriteFile(path, []byte("TEST_RL_ALLOWLIST=10.0.0.1,10.0.0.2\nTEST_RL_LIMIT=7\n"), 0o600))

	require.NoError(t, config.LoadEnv(path))

	var cfg allowlistConfig
	require.NoError(t, config.Parse(&cfg))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Allowlist)
	assert.Equal(t, 7, cfg.Limit)
	assert.True(t, cfg.Enabled)
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	t.Setenv("TEST_RL_LIMIT", "3")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEST_RL_LIMIT=99\n"), 0o600))
	require.NoError(t, config.LoadEnv(path))

	var cfg allowlistConfig
	require.NoError(t, config.Parse(&cfg))
	assert.Equal(t, 3, cfg.Limit)
}

func TestLoadEnv_MissingFile(t *testing.T) {
	err := config.LoadEnv(filepath.Join(t.TempDir(), "nope.env"))
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestResetCache(t *testing.T) {
	type resettable struct {
		V string `env:"TEST_RESET_VALUE"`
	}

	t.Setenv("TEST_RESET_VALUE", "one")
	var first resettable
	require.NoError(t, config.Load(&first))

	t.Setenv("TEST_RESET_VALUE", "two")
	config.ResetCache()

	var second resettable
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "two", second.V)
}
