package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identkit/identcli/internal/config"
)

func setupViper(t *testing.T, values map[string]any) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for key, value := range values {
		viper.Set(key, value)
	}
}

func TestLoadRequiresAPIURL(t *testing.T) {
	setupViper(t, map[string]any{"store": config.StoreMemory})

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrMissingAPIURL)
}

func TestLoadMemoryBackend(t *testing.T) {
	setupViper(t, map[string]any{
		"api_url": "http://localhost:3000",
		"store":   config.StoreMemory,
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
	assert.Equal(t, config.StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestLoadFileBackendRequiresPassphrase(t *testing.T) {
	setupViper(t, map[string]any{
		"api_url": "http://localhost:3000",
		"store":   config.StoreFile,
	})
	t.Setenv(config.PassphraseEnv, "")

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrMissingPassphrase)
}

func TestLoadFileBackendReadsPassphraseFromEnv(t *testing.T) {
	setupViper(t, map[string]any{
		"api_url": "http://localhost:3000",
		"store":   config.StoreFile,
	})
	t.Setenv(config.PassphraseEnv, "hunter2")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Passphrase)
	assert.NotEmpty(t, cfg.StorePath)
}

func TestLoadDefaultsToFileBackend(t *testing.T) {
	setupViper(t, map[string]any{"api_url": "http://localhost:3000"})
	t.Setenv(config.PassphraseEnv, "hunter2")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.StoreFile, cfg.StoreBackend)
}

func TestLoadRedisBackendRequiresURL(t *testing.T) {
	setupViper(t, map[string]any{
		"api_url": "http://localhost:3000",
		"store":   config.StoreRedis,
	})

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrMissingRedisURL)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	setupViper(t, map[string]any{
		"api_url": "http://localhost:3000",
		"store":   "s3",
	})

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrUnknownBackend)
}

func TestLoadCustomTimeout(t *testing.T) {
	setupViper(t, map[string]any{
		"api_url":      "http://localhost:3000",
		"store":        config.StoreMemory,
		"http_timeout": "5s",
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
}
