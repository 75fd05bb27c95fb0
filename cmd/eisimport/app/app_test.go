package app

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/eis-ingest/internal/ingest"
	"github.com/roman-kulish/eis-ingest/internal/transport"
)

func TestNewConfigFromCLI(t *testing.T) {
	c, err := NewConfigFromCLI(nil)
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), c)

	c, err = NewConfigFromCLI([]string{"-s", "http://eis:9000", "-d", "/data", "-max-rows", "10", "-cap-rows", "-log-level", "debug", "-timeout", "5s"})
	require.NoError(t, err)
	assert.Equal(t, "http://eis:9000", c.ServerURL)
	assert.Equal(t, "/data", c.DatasetRoot)
	assert.Equal(t, 10, c.MaxRows)
	assert.True(t, c.CapRows)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestNewConfigFromCLI_Errors(t *testing.T) {
	tests := map[string][]string{
		"server url":      {"-s", "localhost"},
		"dataset":         {"-d", ""},
		"max rows":        {"-max-rows", "-1"},
		"cap without max": {"-max-rows", "0", "-cap-rows"},
		"timeout":         {"-timeout", "0s"},
		"log level":       {"-log-level", "loud"},
		"unknown flag":    {"-x"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfigFromCLI(args)
			assert.Error(t, err)
		})
	}
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "B1", "Test_1", "EIS_50%.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("Frequency(Hz);R(ohm);X(ohm)\n100;0,1;-0,2\n10;0,2;-0,1\n"), 0o644))

	svc, err := ingest.New(t.TempDir())
	require.NoError(t, err)
	srv := httptest.NewServer(transport.NewServer(svc))
	defer srv.Close()

	config := NewConfig()
	config.ServerURL = srv.URL
	config.DatasetRoot = root

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Run(context.Background(), config, logger))

	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.csv"), []byte("nothing\n"), 0o644))
	assert.ErrorIs(t, Run(context.Background(), config, logger), ErrIncomplete)

	config.ServerURL = "http://127.0.0.1:1"
	assert.Error(t, Run(context.Background(), config, logger))
}

func TestNewLogger(t *testing.T) {
	config := NewConfig()
	config.LogPath = filepath.Join(t.TempDir(), "import.log")

	logger, closer, err := NewLogger(config)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(config.LogPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "msg=hello"))
}
