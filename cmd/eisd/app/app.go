package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/eis-ingest/internal/eis"
	"github.com/roman-kulish/eis-ingest/internal/ingest"
	"github.com/roman-kulish/eis-ingest/internal/storage"
	"github.com/roman-kulish/eis-ingest/internal/transport"
)

// Run starts the ingestion server and blocks until ctx is cancelled or one of
// its components fails. Open sessions are closed before Run returns.
func Run(ctx context.Context, configPath string, config *Config, logLevel *slog.LevelVar, logger *slog.Logger) error {
	if err := os.MkdirAll(config.Storage.DataRoot, 0o755); err != nil {
		return fmt.Errorf("creating data root: %w", err)
	}

	policy, err := eis.ParseQuotaPolicy(config.Sessions.QuotaPolicy)
	if err != nil {
		return err
	}

	options := []func(*ingest.Service){
		ingest.WithLogger(logger),
		ingest.WithQuotaPolicy(policy),
		ingest.WithSyncWrites(config.Storage.SyncWrites),
	}

	catalog, err := createCatalog(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}
	if catalog != nil {
		defer func() {
			if cErr := catalog.Close(); cErr != nil {
				logger.Error("closing catalog", slog.Any("error", cErr))
			}
		}()
		options = append(options, ingest.WithCatalog(catalog))
	}

	svc, err := ingest.New(config.Storage.DataRoot, options...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server := &http.Server{
		Addr:         config.Server.Address,
		Handler:      transport.NewServer(svc, transport.WithLogger(logger)),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening",
			slog.String("address", config.Server.Address),
			slog.String("dataRoot", config.Storage.DataRoot),
			slog.String("quotaPolicy", string(policy)))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), config.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", slog.Any("error", err))
		}
		return svc.Close(shutdownCtx)
	})

	if config.Sessions.IdleTimeout > 0 {
		g.Go(func() error {
			return svc.RunEvictor(gctx, config.Sessions.SweepInterval, config.Sessions.IdleTimeout)
		})
	}

	g.Go(func() error {
		return WatchConfig(gctx, configPath, func(c *Config) {
			level, _ := c.Settings.Level()
			if level != logLevel.Level() {
				logLevel.Set(level)
				logger.Info("log level changed", slog.String("level", level.String()))
			}
		}, logger)
	})

	return g.Wait()
}

func createCatalog(config *StorageConfig) (*storage.SqliteCatalog, error) {
	if config.CatalogPath == "" {
		return nil, nil
	}

	dir := filepath.Dir(config.CatalogPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory '%s': %w", dir, err)
	}
	return storage.NewSqliteCatalog(config.CatalogPath), nil
}
