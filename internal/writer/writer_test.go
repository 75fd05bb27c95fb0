package writer

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/eis-ingest/internal/eis"
)

var (
	testMeta = eis.Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: 50, FileName: "b01.csv", TotalRows: 3}
	testTime = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
)

func sample(row int, rangeOhm float64) eis.Sample {
	return eis.Sample{
		RowIndex:       row,
		FrequencyHz:    100,
		ROhm:           0.1,
		XOhm:           0.01,
		TDegC:          25,
		RangeOhm:       rangeOhm,
		TimestampLocal: testTime,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func newWriter(t *testing.T, root string, options ...func(*Writer)) *Writer {
	t.Helper()

	options = append([]func(*Writer){WithClock(func() time.Time { return testTime })}, options...)
	w, err := New(root, testMeta, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestNew_CreatesFolderAndHeaders(t *testing.T) {
	root := t.TempDir()
	w := newWriter(t, root)

	assert.Equal(t, filepath.Join(root, "B01", "Test_1", "50%"), w.Folder())
	require.NoError(t, w.Close())

	sessionRows := readCSV(t, filepath.Join(w.Folder(), SessionFile))
	require.Len(t, sessionRows, 1)
	assert.Equal(t, sessionHeader, sessionRows[0])

	rejectRows := readCSV(t, filepath.Join(w.Folder(), RejectsFile))
	require.Len(t, rejectRows, 1)
	assert.Equal(t, rejectsHeader, rejectRows[0])

	_, err := os.Stat(filepath.Join(w.Folder(), LockFile))
	assert.True(t, os.IsNotExist(err), "lock file must be removed on close")
}

func TestNew_TruncatesPreviousOutput(t *testing.T) {
	root := t.TempDir()

	first := newWriter(t, root)
	_, err := first.Append(sample(0, 1))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newWriter(t, root)
	require.NoError(t, second.Close())

	rows := readCSV(t, filepath.Join(second.Folder(), SessionFile))
	assert.Len(t, rows, 1, "only the header must survive a new session")
}

func TestNew_ExclusiveFolder(t *testing.T) {
	root := t.TempDir()
	w := newWriter(t, root)

	_, err := New(root, testMeta)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, w.Close())

	again, err := New(root, testMeta)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestAppend(t *testing.T) {
	tests := []struct {
		name   string
		sample eis.Sample
		want   Result
	}{
		{"accepted", sample(0, 1), Result{Accepted: true, Advance: true}},
		{"negative range", sample(1, -1), Result{Reason: ReasonInvalidRange}},
		{"NaN range", sample(1, math.NaN()), Result{Reason: ReasonInvalidRange}},
		{"at plan", sample(3, 1), Result{Reason: ReasonOverQuota, Advance: true}},
		{"beyond plan", sample(7, 1), Result{Reason: ReasonOverQuota, Advance: true}},
		{"beyond plan with bad range", sample(7, -1), Result{Reason: ReasonOverQuota, Advance: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWriter(t, t.TempDir())

			got, err := w.Append(tt.sample)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppend_QuotaOff(t *testing.T) {
	w := newWriter(t, t.TempDir(), WithQuotaPolicy(eis.QuotaOff))

	got, err := w.Append(sample(10, 1))
	require.NoError(t, err)
	assert.True(t, got.Accepted)
}

func TestAppend_RowFormat(t *testing.T) {
	w := newWriter(t, t.TempDir(), WithSync(true))

	s := sample(0, 1)
	s.FrequencyHz = 0.00001
	s.XOhm = -0.0125
	_, err := w.Append(s)
	require.NoError(t, err)

	_, err = w.Append(sample(5, 1))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rows := readCSV(t, filepath.Join(w.Folder(), SessionFile))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0", "1E-05", "0.1", "-0.0125", "25", "1", "2024-05-01T10:30:00Z"}, rows[1])

	rejects := readCSV(t, filepath.Join(w.Folder(), RejectsFile))
	require.Len(t, rejects, 2)
	assert.Equal(t, []string{"2024-05-01T10:30:00Z", ReasonOverQuota, "5", "100", "0.1", "0.01", "25", "1"}, rejects[1])
}

func TestReject_QuotesReason(t *testing.T) {
	w := newWriter(t, t.TempDir())

	require.NoError(t, w.Reject(sample(2, 1), "out of order: expected row 1, got 2"))
	require.NoError(t, w.Close())

	rejects := readCSV(t, filepath.Join(w.Folder(), RejectsFile))
	require.Len(t, rejects, 2)
	assert.Equal(t, "out of order: expected row 1, got 2", rejects[1][1])
}

func TestStats(t *testing.T) {
	w := newWriter(t, t.TempDir())

	_, err := w.Append(sample(0, 1))
	require.NoError(t, err)
	_, err = w.Append(sample(1, -1))
	require.NoError(t, err)

	st := w.Stats()
	assert.Equal(t, 1, st.Accepted)
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, w.Folder(), st.Folder)
	assert.Positive(t, st.Bytes)
}

func TestClose_Idempotent(t *testing.T) {
	w := newWriter(t, t.TempDir())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err := w.Append(sample(0, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Reject(sample(0, 1), "late"), ErrClosed)
}
