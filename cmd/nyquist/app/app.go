package app

import (
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
)

func Run(config *Config, logger *slog.Logger) (err error) {
	series, err := ReadSession(config.SessionPath)
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}

	logger.Info("session loaded",
		slog.Group("session",
			slog.String("battery", series.BatteryID),
			slog.String("test", series.TestID),
			slog.String("soc", series.SoC),
			slog.Int("points", len(series.Points)),
			slog.String("minFreq", formatHz(series.FrequencyMin)),
			slog.String("maxFreq", formatHz(series.FrequencyMax)),
		))

	renderer, err := NewRenderer(RenderConfig{
		Width:  config.Width,
		Height: config.Height,
	})
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	img, err := renderer.Render(series)
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	logger.Info("plot written",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))
	return nil
}
