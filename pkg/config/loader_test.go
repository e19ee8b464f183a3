package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/phkit/pkg/config"
)

type queueConfig struct {
	FlushIntervalMs int    `env:"TEST_PHKIT_FLUSH_INTERVAL_MS" envDefault:"3000"`
	Host            string `env:"TEST_PHKIT_HOST" envDefault:"https://us.i.posthog.com"`
}

type requiredConfig struct {
	APIKey string `env:"TEST_PHKIT_REQUIRED_KEY,required"`
}

type fileConfig struct {
	Name string `env:"TEST_PHKIT_FROM_FILE"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults and overrides", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("TEST_PHKIT_FLUSH_INTERVAL_MS", "500")

		var cfg queueConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 500, cfg.FlushIntervalMs)
		assert.Equal(t, "https://us.i.posthog.com", cfg.Host)
	})

	t.Run("cached per type", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("TEST_PHKIT_FLUSH_INTERVAL_MS", "700")

		var first queueConfig
		require.NoError(t, config.Load(&first))

		t.Setenv("TEST_PHKIT_FLUSH_INTERVAL_MS", "900")
		var second queueConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, 700, second.FlushIntervalMs)

		config.ResetCache()
		var third queueConfig
		require.NoError(t, config.Load(&third))
		assert.Equal(t, 900, third.FlushIntervalMs)
	})

	t.Run("missing required value", func(t *testing.T) {
		config.ResetCache()
		os.Unsetenv("TEST_PHKIT_REQUIRED_KEY")

		var cfg requiredConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *queueConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	t.Cleanup(func() { os.Unsetenv("TEST_PHKIT_FROM_FILE") })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TEST_PHKIT_FROM_FILE=from-file\n"), 0o600))

	require.NoError(t, config.LoadEnv(path))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "from-file", cfg.Name)

	assert.ErrorIs(t, config.LoadEnv(filepath.Join(t.TempDir(), "missing.env")), config.ErrLoadingEnvFile)
}
