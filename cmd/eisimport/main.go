package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/eis-ingest/cmd/eisimport/app"
)

func main() {
	config, err := app.NewConfigFromCLI(os.Args[1:])
	if err != nil {
		slog.Error(err.Error())
		os.Exit(2)
	}

	logger, closer, err := app.NewLogger(config)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(fmt.Sprintf("import failed: %s", err.Error()), slog.String("dataset", config.DatasetRoot))

		cancel()
		_ = closer.Close()
		os.Exit(1)
	}
}
