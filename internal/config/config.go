// Package config resolves the CLI configuration from flags, environment
// and config file via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

const (
	// PassphraseEnv names the environment variable holding the file
	// store passphrase. It is read directly, never from a config file.
	PassphraseEnv = "IDENTCLI_PASSPHRASE"

	defaultHTTPTimeout = 30 * time.Second
)

var (
	ErrMissingAPIURL     = errors.New("api_url must be provided")
	ErrUnknownBackend    = errors.New("unknown credential store backend")
	ErrMissingRedisURL   = errors.New("redis backend requires redis_url")
	ErrMissingPassphrase = errors.New("file backend requires " + PassphraseEnv)
)

// Config is the resolved CLI configuration.
type Config struct {
	APIBaseURL   string
	StoreBackend string
	StorePath    string
	Passphrase   string
	RedisURL     string
	HTTPTimeout  time.Duration
	LogLevel     string
}

// Load reads and validates the configuration from viper.
func Load() (Config, error) {
	cfg := Config{
		APIBaseURL:   viper.GetString("api_url"),
		StoreBackend: viper.GetString("store"),
		StorePath:    viper.GetString("store_path"),
		Passphrase:   os.Getenv(PassphraseEnv),
		RedisURL:     viper.GetString("redis_url"),
		HTTPTimeout:  viper.GetDuration("http_timeout"),
		LogLevel:     viper.GetString("log_level"),
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreFile
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath()
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, ErrMissingAPIURL
	}
	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreFile:
		if cfg.Passphrase == "" {
			return Config{}, ErrMissingPassphrase
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return Config{}, ErrMissingRedisURL
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
	}
	return cfg, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".identcli", "credentials")
	}
	return filepath.Join(home, ".identcli", "credentials")
}
