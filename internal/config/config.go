// Package config provides configuration loading for the skinscan CLI and the
// local stub service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/skinscan/internal/retry"
	"github.com/example/skinscan/internal/state"
)

// EnvPrefix is prepended to every environment override, e.g. SKINSCAN_SERVICE_BASE_URL.
const EnvPrefix = "SKINSCAN"

// Config holds all configuration for the application.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Log     LogConfig     `mapstructure:"log"`
	State   StateConfig   `mapstructure:"state"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Journal JournalConfig `mapstructure:"journal"`
	Stub    StubConfig    `mapstructure:"stub"`
}

// ServiceConfig points at the analysis service.
type ServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StateConfig selects where the session and consent are kept between runs.
type StateConfig struct {
	Backend string      `mapstructure:"backend"` // file, memory, redis
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Key returns the key the state snapshot is stored under.
func (c RedisConfig) Key() string {
	return c.Prefix + "state"
}

// SyncConfig controls retries of consent sync and journal writes.
type SyncConfig struct {
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// Policy converts the settings into a retry policy.
func (c SyncConfig) Policy() retry.Policy {
	return retry.Policy{Attempts: c.RetryAttempts, InitialBackoff: c.InitialBackoff, MaxBackoff: c.MaxBackoff}
}

// JournalConfig enables the Postgres scan journal when DSN is set.
type JournalConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Enabled reports whether a journal database is configured.
func (c JournalConfig) Enabled() bool {
	return c.DSN != ""
}

// StubConfig holds settings of the local stub service.
type StubConfig struct {
	Addr               string        `mapstructure:"addr"`
	JWTSecret          string        `mapstructure:"jwt_secret"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	RequireDeviceToken bool          `mapstructure:"require_device_token"`
	// LegalVersion versions the served legal documents; empty serves none.
	LegalVersion string `mapstructure:"legal_version"`
}

// Load reads configuration from the yaml file at path (or skinscan.yaml in the
// usual locations when path is empty), environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("skinscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.base_url", "http://localhost:8080")
	v.SetDefault("service.timeout", "30s")

	v.SetDefault("log.level", "info")

	v.SetDefault("state.backend", state.BackendFile)
	v.SetDefault("state.path", defaultStatePath())
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.redis.prefix", "skinscan:")

	v.SetDefault("sync.retry_attempts", retry.DefaultPolicy.Attempts)
	v.SetDefault("sync.initial_backoff", retry.DefaultPolicy.InitialBackoff)
	v.SetDefault("sync.max_backoff", retry.DefaultPolicy.MaxBackoff)

	v.SetDefault("journal.dsn", "")

	v.SetDefault("stub.addr", ":8080")
	v.SetDefault("stub.jwt_secret", "dev-secret")
	v.SetDefault("stub.token_ttl", "60m")
	v.SetDefault("stub.require_device_token", true)
	v.SetDefault("stub.legal_version", "2024-06-01")
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid service.base_url %q", c.Service.BaseURL)
	}
	switch c.State.Backend {
	case state.BackendFile:
		if c.State.Path == "" {
			return fmt.Errorf("config: state.path is required for the file backend")
		}
	case state.BackendMemory, state.BackendRedis:
	default:
		return fmt.Errorf("config: unknown state.backend %q", c.State.Backend)
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("config: sync.retry_attempts must be positive, got %d", c.Sync.RetryAttempts)
	}
	if c.Service.Timeout <= 0 {
		return fmt.Errorf("config: service.timeout must be positive")
	}
	return nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "skinscan"), nil
}

func defaultStatePath() string {
	dir, err := configDir()
	if err != nil {
		return "skinscan-state.json"
	}
	return filepath.Join(dir, "state.json")
}
