package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/eis-ingest/internal/eis"
)

const (
	defaultAddress         = ":8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultDataRoot        = "Data"
	defaultIdleTimeout     = 30 * time.Minute
	defaultSweepInterval   = time.Minute
)

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level. An empty value means INFO.
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return level, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level '%s'", s.LogLevel)
	}
	return level, nil
}

// ServerConfig represents HTTP listener settings
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StorageConfig represents storage settings. An empty CatalogPath disables
// the session catalog.
type StorageConfig struct {
	DataRoot    string `yaml:"dataRoot"`
	CatalogPath string `yaml:"catalogPath"`
	SyncWrites  bool   `yaml:"syncWrites"`
}

// SessionsConfig represents session lifecycle settings. A zero IdleTimeout
// disables eviction.
type SessionsConfig struct {
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	QuotaPolicy   string        `yaml:"quotaPolicy"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         defaultAddress,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Storage: StorageConfig{
			DataRoot: defaultDataRoot,
		},
		Sessions: SessionsConfig{
			IdleTimeout:   defaultIdleTimeout,
			SweepInterval: defaultSweepInterval,
			QuotaPolicy:   string(eis.QuotaAdvance),
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := NewConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if c.Storage.DataRoot == "" {
		errs = append(errs, errors.New("storage data root is required"))
	}
	if c.Sessions.IdleTimeout < 0 {
		errs = append(errs, errors.New("session idle timeout must not be negative"))
	}
	if c.Sessions.IdleTimeout > 0 && c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("session sweep interval must be positive"))
	}
	if _, err := eis.ParseQuotaPolicy(c.Sessions.QuotaPolicy); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
