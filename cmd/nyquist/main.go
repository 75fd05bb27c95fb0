package main

import (
	"log/slog"
	"os"

	"github.com/roman-kulish/eis-ingest/cmd/nyquist/app"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	config, err := app.NewConfigFromCLI(os.Args[1:])
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	if err = app.Run(config, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
