package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roman-kulish/eis-ingest/internal/writer"
)

var ErrNoPoints = errors.New("session has no accepted rows")

// Point is one accepted impedance measurement.
type Point struct {
	Row         int
	FrequencyHz float64
	ROhm        float64
	XOhm        float64
}

// Series is the content of a session log together with its bounds.
type Series struct {
	BatteryID string
	TestID    string
	SoC       string
	Points    []Point

	FrequencyMin, FrequencyMax float64
	RMin, RMax                 float64
	NegXMin, NegXMax           float64
}

// ReadSession loads the accepted rows of a session. path is either a session
// folder or the session log itself. Battery, test and state of charge are
// taken from the folder layout.
func ReadSession(path string) (*Series, error) {
	if stat, err := os.Stat(path); err != nil {
		return nil, err
	} else if stat.IsDir() {
		path = filepath.Join(path, writer.SessionFile)
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer fh.Close()

	folder := filepath.Dir(path)
	s := Series{
		SoC:          filepath.Base(folder),
		TestID:       filepath.Base(filepath.Dir(folder)),
		BatteryID:    filepath.Base(filepath.Dir(filepath.Dir(folder))),
		FrequencyMin: math.Inf(1),
		FrequencyMax: math.Inf(-1),
		RMin:         math.Inf(1),
		RMax:         math.Inf(-1),
		NegXMin:      math.Inf(1),
		NegXMax:      math.Inf(-1),
	}

	if err = s.read(fh); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(s.Points) == 0 {
		return nil, ErrNoPoints
	}
	return &s, nil
}

func (s *Series) read(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrNoPoints
		}
		return err
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	idx := make([]int, 0, 4)
	for _, name := range []string{"RowIndex", "FrequencyHz", "R_ohm", "X_ohm"} {
		i, ok := cols[name]
		if !ok {
			return fmt.Errorf("missing column %s", name)
		}
		idx = append(idx, i)
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		p, err := parsePoint(rec, idx)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		s.Add(p)
	}
}

func parsePoint(rec []string, idx []int) (p Point, err error) {
	for _, i := range idx {
		if i >= len(rec) {
			return p, fmt.Errorf("too few columns: %d", len(rec))
		}
	}

	if p.Row, err = strconv.Atoi(rec[idx[0]]); err != nil {
		return p, fmt.Errorf("row index: %w", err)
	}
	if p.FrequencyHz, err = strconv.ParseFloat(rec[idx[1]], 64); err != nil {
		return p, fmt.Errorf("frequency: %w", err)
	}
	if p.ROhm, err = strconv.ParseFloat(rec[idx[2]], 64); err != nil {
		return p, fmt.Errorf("resistance: %w", err)
	}
	if p.XOhm, err = strconv.ParseFloat(rec[idx[3]], 64); err != nil {
		return p, fmt.Errorf("reactance: %w", err)
	}
	return p, nil
}

// Add appends a point and widens the bounds.
func (s *Series) Add(p Point) {
	s.Points = append(s.Points, p)

	s.FrequencyMin = min(s.FrequencyMin, p.FrequencyHz)
	s.FrequencyMax = max(s.FrequencyMax, p.FrequencyHz)
	s.RMin = min(s.RMin, p.ROhm)
	s.RMax = max(s.RMax, p.ROhm)
	s.NegXMin = min(s.NegXMin, -p.XOhm)
	s.NegXMax = max(s.NegXMax, -p.XOhm)
}
