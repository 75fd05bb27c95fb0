package app

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/roman-kulish/eis-ingest/internal/dataset"
)

type Config struct {
	ServerURL   string
	DatasetRoot string
	MaxRows     int
	CapRows     bool
	Timeout     time.Duration
	LogPath     string
	LogLevel    slog.Level
}

func NewConfig() *Config {
	return &Config{
		ServerURL:   "http://localhost:8080",
		DatasetRoot: "Dataset",
		MaxRows:     dataset.DefaultMaxRows,
		Timeout:     30 * time.Second,
	}
}

// NewConfigFromCLI parses the command line arguments.
func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("eisimport", flag.ContinueOnError)
	var logLevel string
	fs.StringVar(&c.ServerURL, "s", c.ServerURL, "Ingestion server URL")
	fs.StringVar(&c.DatasetRoot, "d", c.DatasetRoot, "Path to the dataset root")
	fs.IntVar(&c.MaxRows, "max-rows", c.MaxRows, "Rows announced per file at most, 0 announces every row")
	fs.BoolVar(&c.CapRows, "cap-rows", false, "Stop sending a file once the announced rows are sent")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Timeout of a single request")
	fs.StringVar(&c.LogPath, "log", "", "Append the import log to this file as well")
	fs.StringVar(&logLevel, "log-level", "info", "Log level [debug, info, warn, error]")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if u, pErr := url.Parse(c.ServerURL); pErr != nil || u.Scheme == "" || u.Host == "" {
		err = fmt.Errorf("invalid server url: %s", c.ServerURL)
	} else if c.DatasetRoot == "" {
		err = errors.New("dataset root is required")
	} else if c.MaxRows < 0 {
		err = errors.New("max rows must not be negative")
	} else if c.CapRows && c.MaxRows == 0 {
		err = errors.New("cap-rows requires max-rows")
	} else if c.Timeout <= 0 {
		err = errors.New("timeout must be positive")
	} else if lErr := c.LogLevel.UnmarshalText([]byte(logLevel)); lErr != nil {
		err = fmt.Errorf("invalid log level: %s", logLevel)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}
	return c, nil
}
