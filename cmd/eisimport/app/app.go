package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/roman-kulish/eis-ingest/internal/dataset"
	"github.com/roman-kulish/eis-ingest/internal/transport"
)

// ErrIncomplete is returned when at least one file failed to import.
var ErrIncomplete = errors.New("some files failed to import")

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	client := transport.NewClient(config.ServerURL, transport.WithHTTPClient(&http.Client{Timeout: config.Timeout}))

	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("server %s is not reachable: %w", config.ServerURL, err)
	}
	logger.Info("connected",
		slog.String("server", config.ServerURL),
		slog.String("status", health.Status),
		slog.Int("activeSessions", health.ActiveSessions))

	im := dataset.NewImporter(client,
		dataset.WithLogger(logger),
		dataset.WithMaxRows(config.MaxRows),
		dataset.WithCapRows(config.CapRows))

	sum, err := im.Run(ctx, config.DatasetRoot)
	if err != nil {
		return err
	}

	logger.Info("summary",
		slog.Group("files",
			slog.Int("found", sum.Files),
			slog.Int("imported", sum.Imported),
			slog.Int("failed", sum.Failed)),
		slog.Group("rows",
			slog.Int("accepted", sum.Accepted),
			slog.Int("rejected", sum.Rejected)))

	if sum.Failed > 0 {
		return ErrIncomplete
	}
	return nil
}

// NewLogger creates the importer logger writing to stdout and, when
// config.LogPath is set, appending to that file too. The returned closer
// releases the file.
func NewLogger(config *Config) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)

	if config.LogPath != "" {
		f, err := os.OpenFile(config.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: config.LogLevel})), closer, nil
}
