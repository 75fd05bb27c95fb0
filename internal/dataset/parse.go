package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/eis-ingest/internal/eis"
)

const (
	defaultTemperature = 25.0
	defaultRange       = 0.0
)

var (
	// ErrEmptyFile is returned when a file has no header line.
	ErrEmptyFile = errors.New("file has no header")

	// ErrMissingColumn is returned when a mandatory column cannot be found.
	ErrMissingColumn = errors.New("missing column")
)

// Header aliases, matched case-insensitively as substrings. The first header
// matching any alias wins.
var (
	freqAliases  = []string{"frequency(hz)", "frequency", "freq", "hz"}
	rAliases     = []string{"r(ohm)", "r(", "r "}
	xAliases     = []string{"x(ohm)", "x(", "x "}
	tempAliases  = []string{"t(deg c)", "deg c", "degc", "temp", "temperature", "t("}
	rangeAliases = []string{"range(ohm)", "range"}
)

// Columns holds the positions of the measurement columns. Temperature and
// Range are -1 when the file does not have them.
type Columns struct {
	Frequency   int
	R           int
	X           int
	Temperature int
	Range       int
}

// File is a measurement file split into its header and non-blank data lines.
type File struct {
	Path      string
	Delimiter string
	Header    []string
	Columns   Columns
	Lines     []string
}

// Meta derives the session metadata of the file. planned is the number of
// rows announced to the server.
func (f *File) Meta(planned int) eis.Metadata {
	name := filepath.Base(f.Path)

	return eis.Metadata{
		BatteryID:  BatteryID(f.Path),
		TestID:     TestID(f.Path),
		SoCPercent: SoCPercent(strings.TrimSuffix(name, filepath.Ext(name))),
		FileName:   name,
		TotalRows:  planned,
	}
}

// ReadFile loads a measurement file, sniffs its delimiter and locates its
// columns.
func ReadFile(path string) (_ *File, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer func() {
		if cErr := fh.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	var (
		header string
		lines  []string
	)

	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if header == "" {
			header = strings.TrimPrefix(line, "\ufeff")
			continue
		}
		lines = append(lines, line)
	}
	if err = sc.Err(); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if header == "" {
		return nil, ErrEmptyFile
	}

	var first string
	if len(lines) > 0 {
		first = lines[0]
	}

	f := File{
		Path:      path,
		Delimiter: DetectDelimiter(header, first),
		Lines:     lines,
	}
	for _, h := range strings.Split(header, f.Delimiter) {
		f.Header = append(f.Header, strings.TrimSpace(h))
	}

	if f.Columns, err = FindColumns(f.Header); err != nil {
		return nil, err
	}
	return &f, nil
}

// DetectDelimiter returns ";" or "," by looking at the header first and the
// first data line second. Semicolons win over commas since decimal commas
// are common in semicolon separated files.
func DetectDelimiter(header, firstLine string) string {
	for _, line := range []string{header, firstLine} {
		switch {
		case strings.Contains(line, ";"):
			return ";"
		case strings.Contains(line, ","):
			return ","
		}
	}
	return ","
}

// FindColumns locates the measurement columns in a header.
func FindColumns(header []string) (Columns, error) {
	c := Columns{
		Frequency:   findColumn(header, freqAliases),
		R:           findColumn(header, rAliases),
		X:           findColumn(header, xAliases),
		Temperature: findColumn(header, tempAliases),
		Range:       findColumn(header, rangeAliases),
	}

	switch {
	case c.Frequency < 0:
		return c, fmt.Errorf("%w: Frequency(Hz)", ErrMissingColumn)
	case c.R < 0:
		return c, fmt.Errorf("%w: R(ohm)", ErrMissingColumn)
	case c.X < 0:
		return c, fmt.Errorf("%w: X(ohm)", ErrMissingColumn)
	}
	return c, nil
}

func findColumn(header []string, aliases []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, alias := range aliases {
			if strings.Contains(h, alias) {
				return i
			}
		}
	}
	return -1
}

// ParseSample converts one data line into a sample with the given row index.
// Missing temperature defaults to 25 °C and missing range to 0 ohm.
func (f *File) ParseSample(line string, row int, ts time.Time) (eis.Sample, error) {
	parts := strings.Split(line, f.Delimiter)
	if len(parts) < len(f.Header) {
		return eis.Sample{}, fmt.Errorf("too few columns: got %d, want %d", len(parts), len(f.Header))
	}

	s := eis.Sample{
		RowIndex:       row,
		FrequencyHz:    ParseFloat(parts[f.Columns.Frequency]),
		ROhm:           ParseFloat(parts[f.Columns.R]),
		XOhm:           ParseFloat(parts[f.Columns.X]),
		TDegC:          defaultTemperature,
		RangeOhm:       defaultRange,
		TimestampLocal: ts,
	}
	if f.Columns.Temperature >= 0 {
		s.TDegC = ParseFloat(parts[f.Columns.Temperature])
	}
	if f.Columns.Range >= 0 {
		s.RangeOhm = ParseFloat(parts[f.Columns.Range])
	}

	if err := eis.ValidateSample(&s); err != nil {
		var invalid *eis.InvalidError
		if errors.As(err, &invalid) {
			return s, fmt.Errorf("bad %s: %w", invalid.Field, err)
		}
		return s, err
	}
	return s, nil
}

// ParseFloat parses a number written with either a decimal point or a decimal
// comma. NaN is returned for blank or unparsable values.
func ParseFloat(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return math.NaN()
	}

	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); err == nil {
		return f
	}
	return math.NaN()
}
