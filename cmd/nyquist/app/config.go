package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	SessionPath string
	OutputFile  string
	Format      ImageFormat
	Width       int
	Height      int
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Width:  defaultWidth,
		Height: defaultHeight,
	}
}

func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("nyquist", flag.ContinueOnError)
	var imageFormat string
	fs.StringVar(&c.SessionPath, "i", "", "Path to a session folder or its session.csv")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.IntVar(&c.Width, "width", c.Width, "Width of the plot area in pixels")
	fs.IntVar(&c.Height, "height", c.Height, "Height of the plot area in pixels")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.SessionPath == "" {
		err = errors.New("session path is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.Width < pixelsPerLabel || c.Height < pixelsPerLabel {
		err = fmt.Errorf("plot area must be at least %dx%d pixels", pixelsPerLabel, pixelsPerLabel)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
