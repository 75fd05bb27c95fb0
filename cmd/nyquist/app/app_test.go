package app

import (
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/eis-ingest/internal/eis"
	"github.com/roman-kulish/eis-ingest/internal/writer"
)

func writeSession(t *testing.T, samples ...eis.Sample) string {
	t.Helper()

	w, err := writer.New(t.TempDir(), eis.Metadata{BatteryID: "B01", TestID: "Test_2", SoCPercent: 50, FileName: "EIS_50%.csv"})
	require.NoError(t, err)
	for _, s := range samples {
		_, err = w.Append(s)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.Folder()
}

func sample(row int, hz, r, x float64) eis.Sample {
	return eis.Sample{RowIndex: row, FrequencyHz: hz, ROhm: r, XOhm: x, TDegC: 25, RangeOhm: 1, TimestampLocal: time.Now()}
}

func TestReadSession(t *testing.T) {
	folder := writeSession(t,
		sample(0, 1000, 0.020, -0.004),
		sample(1, 100, 0.025, -0.002),
		sample(2, 0.1, 0.040, 0.001),
	)

	s, err := ReadSession(folder)
	require.NoError(t, err)

	assert.Equal(t, "B01", s.BatteryID)
	assert.Equal(t, "Test_2", s.TestID)
	assert.Equal(t, "50%", s.SoC)
	require.Len(t, s.Points, 3)
	assert.Equal(t, Point{Row: 2, FrequencyHz: 0.1, ROhm: 0.040, XOhm: 0.001}, s.Points[2])
	assert.Equal(t, 0.1, s.FrequencyMin)
	assert.Equal(t, 1000.0, s.FrequencyMax)
	assert.Equal(t, 0.020, s.RMin)
	assert.Equal(t, 0.040, s.RMax)
	assert.Equal(t, -0.001, s.NegXMin)
	assert.Equal(t, 0.004, s.NegXMax)

	// the log itself works as well
	s, err = ReadSession(filepath.Join(folder, writer.SessionFile))
	require.NoError(t, err)
	assert.Len(t, s.Points, 3)
}

func TestReadSession_Errors(t *testing.T) {
	_, err := ReadSession(writeSession(t))
	assert.ErrorIs(t, err, ErrNoPoints)

	_, err = ReadSession(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "session.csv")
	require.NoError(t, os.WriteFile(path, []byte("RowIndex,FrequencyHz\n0,1\n"), 0o644))
	_, err = ReadSession(path)
	assert.ErrorContains(t, err, "missing column R_ohm")

	require.NoError(t, os.WriteFile(path, []byte("RowIndex,FrequencyHz,R_ohm,X_ohm\n0,1,abc,2\n"), 0o644))
	_, err = ReadSession(path)
	assert.ErrorContains(t, err, "line 2")
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		span float64
		n    int
		want float64
	}{
		{10, 10, 1},
		{10, 5, 2},
		{10, 3, 5},
		{0.02, 4, 0.005},
		{700, 1, 1000},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NiceStep(tt.span, tt.n), 1e-12, "span %v into %d", tt.span, tt.n)
	}
}

func TestAxis(t *testing.T) {
	a := NewAxis(0.021, 0.039, 4)
	assert.InDelta(t, 0.005, a.Step, 1e-12)
	assert.InDelta(t, 0.02, a.Min, 1e-12)
	assert.InDelta(t, 0.04, a.Max, 1e-12)
	assert.Len(t, a.Ticks(), 5)

	assert.Equal(t, 0, a.Pixel(a.Min, 400))
	assert.Equal(t, 400, a.Pixel(a.Max, 400))
	assert.Equal(t, 200, a.Pixel(0.03, 400))

	flat := NewAxis(2, 2, 4)
	assert.Less(t, flat.Min, 2.0)
	assert.Greater(t, flat.Max, 2.0)

	zero := NewAxis(0, 0, 4)
	assert.Less(t, zero.Min, 0.0)
	assert.Greater(t, zero.Max, 0.0)
}

func TestEqualize(t *testing.T) {
	x, y := Equalize(Axis{Min: 0, Max: 10, Step: 2}, Axis{Min: 0, Max: 1, Step: 0.2}, 100, 100)

	assert.Equal(t, Axis{Min: 0, Max: 10, Step: 2}, x)
	assert.InDelta(t, -4.5, y.Min, 1e-12)
	assert.InDelta(t, 5.5, y.Max, 1e-12)
	assert.Equal(t, 2.0, y.Step)
}

func TestFrequencyColor(t *testing.T) {
	assert.Equal(t, highFreqColor, frequencyColor(1000, 1, 1000))
	assert.Equal(t, lowFreqColor, frequencyColor(1, 1, 1000))
	assert.Equal(t, lowFreqColor, frequencyColor(5, 5, 5))
}

func TestRun(t *testing.T) {
	folder := writeSession(t,
		sample(0, 1000, 0.020, -0.004),
		sample(1, 100, 0.025, -0.002),
		sample(2, 10, 0.030, 0.0),
		sample(3, 1, 0.034, 0.002),
	)

	out := filepath.Join(t.TempDir(), "plot")
	config, err := NewConfigFromCLI([]string{"-i", folder, "-o", out, "-width", "300", "-height", "200"})
	require.NoError(t, err)
	assert.Equal(t, out+".png", config.OutputFile)

	require.NoError(t, Run(config, slog.New(slog.NewTextHandler(io.Discard, nil))))

	fh, err := os.Open(config.OutputFile)
	require.NoError(t, err)
	defer fh.Close()

	img, err := png.Decode(fh)
	require.NoError(t, err)
	assert.Equal(t, 300+defaultLeftBorder+defaultRightBorder, img.Bounds().Dx())
	assert.Equal(t, 200+defaultTopBorder+defaultBottomBorder, img.Bounds().Dy())
}

func TestNewConfigFromCLI_Errors(t *testing.T) {
	tests := map[string][]string{
		"no session": {"-o", "x"},
		"no output":  {"-i", "x"},
		"format":     {"-i", "x", "-o", "x", "-f", "gif"},
		"too small":  {"-i", "x", "-o", "x", "-width", "10"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfigFromCLI(args)
			assert.Error(t, err)
		})
	}
}
