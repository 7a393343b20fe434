package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all agent configuration.
type Config struct {
	Server     ServerConfig
	Classifier ClassifierConfig
	Account    AccountConfig
	BlockPage  BlockPageConfig
	State      StateConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds the local agent surface configuration.
type ServerConfig struct {
	Addr string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8600"`
}

// ClassifierConfig holds the remote classification service configuration.
type ClassifierConfig struct {
	BaseURL string `envconfig:"CLASSIFIER_URL" default:"http://127.0.0.1:8000"`
}

// AccountConfig holds the remote registration service configuration.
type AccountConfig struct {
	BaseURL string `envconfig:"ACCOUNT_URL" default:"http://127.0.0.1:8000"`
}

// BlockPageConfig holds the static blocking view configuration.
type BlockPageConfig struct {
	URL string `envconfig:"BLOCK_PAGE_URL" default:""`
}

// StateConfig holds persisted identity state configuration.
type StateConfig struct {
	Dir string `envconfig:"STATE_DIR" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds page-submission rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("WEBCLASS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = defaultStateDir()
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server:     ServerConfig{Addr: "127.0.0.1:8600"},
		Classifier: ClassifierConfig{BaseURL: "http://127.0.0.1:8000"},
		Account:    AccountConfig{BaseURL: "http://127.0.0.1:8000"},
		State:      StateConfig{Dir: defaultStateDir()},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}

// defaultStateDir resolves the per-user state directory for the agent.
func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".webclassification"
	}
	return filepath.Join(base, "webclassification")
}
