package writer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/roman-kulish/eis-ingest/internal/eis"
)

const (
	SessionFile = "session.csv"
	RejectsFile = "rejects.csv"
	LockFile    = ".lock"

	ReasonOverQuota    = "over planned rows"
	ReasonInvalidRange = "invalid range"
)

var (
	sessionHeader = []string{"RowIndex", "FrequencyHz", "R_ohm", "X_ohm", "T_degC", "Range_ohm", "TimestampLocal"}
	rejectsHeader = []string{"UtcTime", "Reason", "RowIndex", "FrequencyHz", "R_ohm", "X_ohm", "T_degC", "Range_ohm"}
)

var (
	// ErrLocked is returned when another session already writes into the same folder.
	ErrLocked = errors.New("session folder is locked by another session")

	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("writer is closed")
)

// Result is the outcome of Append. Advance tells the caller whether the
// ordering cursor should move past the sample's row index.
type Result struct {
	Accepted bool
	Reason   string
	Advance  bool
}

// Stats summarises what a Writer has persisted so far.
type Stats struct {
	Folder   string
	Accepted int
	Rejected int
	Bytes    int64
}

// WithQuotaPolicy sets how rows beyond the planned row count are handled.
func WithQuotaPolicy(policy eis.QuotaPolicy) func(*Writer) {
	return func(w *Writer) {
		w.policy = policy
	}
}

// WithSync makes every appended row fsync'ed to disk, not only flushed to the OS.
func WithSync(sync bool) func(*Writer) {
	return func(w *Writer) {
		w.sync = sync
	}
}

// WithClock overrides the clock used to stamp rejected rows.
func WithClock(now func() time.Time) func(*Writer) {
	return func(w *Writer) {
		w.now = now
	}
}

// Writer is the durable sink of one session: an append-only log of accepted
// rows and a parallel log of rejected rows. It is not safe for concurrent use;
// the owning session serialises access to it.
type Writer struct {
	folder string
	meta   eis.Metadata
	policy eis.QuotaPolicy
	sync   bool
	now    func() time.Time

	lock     *os.File
	accepted *csvLog
	rejected *csvLog

	numAccepted int
	numRejected int

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// New creates the session folder below root, takes the exclusive folder lock
// and truncates both logs. Every session therefore starts a fresh log for its
// battery, test and state of charge.
func New(root string, meta eis.Metadata, options ...func(*Writer)) (_ *Writer, err error) {
	w := &Writer{
		folder: meta.Folder(root),
		meta:   meta,
		policy: eis.QuotaAdvance,
		now:    time.Now,
	}

	for _, option := range options {
		option(w)
	}

	if err = os.MkdirAll(w.folder, 0o755); err != nil {
		return nil, fmt.Errorf("creating session folder: %w", err)
	}

	if w.lock, err = acquireLock(filepath.Join(w.folder, LockFile)); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = w.release()
		}
	}()

	if w.accepted, err = createLog(filepath.Join(w.folder, SessionFile), sessionHeader); err != nil {
		return nil, fmt.Errorf("creating session log: %w", err)
	}
	if w.rejected, err = createLog(filepath.Join(w.folder, RejectsFile), rejectsHeader); err != nil {
		return nil, fmt.Errorf("creating rejects log: %w", err)
	}

	return w, nil
}

// Folder returns the directory holding both logs.
func (w *Writer) Folder() string {
	return w.folder
}

// Append persists a sample into the accepted or the rejected log. Over-quota
// rows are rejected but advance the cursor, so the client can still finish
// the session. Rows with an invalid range are rejected without advancing, so
// the same row index may be resubmitted.
func (w *Writer) Append(s eis.Sample) (Result, error) {
	if w.closed {
		return Result{}, ErrClosed
	}

	if w.meta.OverQuota(s.RowIndex, w.policy) {
		if err := w.Reject(s, ReasonOverQuota); err != nil {
			return Result{}, err
		}
		return Result{Reason: ReasonOverQuota, Advance: true}, nil
	}

	if isInvalidRange(s.RangeOhm) {
		if err := w.Reject(s, ReasonInvalidRange); err != nil {
			return Result{}, err
		}
		return Result{Reason: ReasonInvalidRange}, nil
	}

	record := []string{
		strconv.Itoa(s.RowIndex),
		formatFloat(s.FrequencyHz),
		formatFloat(s.ROhm),
		formatFloat(s.XOhm),
		formatFloat(s.TDegC),
		formatFloat(s.RangeOhm),
		s.TimestampLocal.Format(time.RFC3339Nano),
	}
	if err := w.accepted.write(record, w.sync); err != nil {
		return Result{}, fmt.Errorf("appending accepted row %d: %w", s.RowIndex, err)
	}

	w.numAccepted++
	return Result{Accepted: true, Advance: true}, nil
}

// Reject records a sample in the rejected log with the given reason.
func (w *Writer) Reject(s eis.Sample, reason string) error {
	if w.closed {
		return ErrClosed
	}

	record := []string{
		w.now().UTC().Format(time.RFC3339Nano),
		reason,
		strconv.Itoa(s.RowIndex),
		formatFloat(s.FrequencyHz),
		formatFloat(s.ROhm),
		formatFloat(s.XOhm),
		formatFloat(s.TDegC),
		formatFloat(s.RangeOhm),
	}
	if err := w.rejected.write(record, w.sync); err != nil {
		return fmt.Errorf("appending rejected row %d: %w", s.RowIndex, err)
	}

	w.numRejected++
	return nil
}

// Stats returns the counters of the writer.
func (w *Writer) Stats() Stats {
	st := Stats{
		Folder:   w.folder,
		Accepted: w.numAccepted,
		Rejected: w.numRejected,
	}
	if w.accepted != nil {
		st.Bytes += w.accepted.counter.n
	}
	if w.rejected != nil {
		st.Bytes += w.rejected.counter.n
	}
	return st
}

// Close flushes and releases both logs and the folder lock. It is safe to
// call Close multiple times.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.closed = true
		w.closeErr = w.release()
	})

	return w.closeErr
}

func (w *Writer) release() error {
	var errs []error

	if w.accepted != nil {
		errs = append(errs, w.accepted.close())
		w.accepted.file = nil
	}
	if w.rejected != nil {
		errs = append(errs, w.rejected.close())
		w.rejected.file = nil
	}
	if w.lock != nil {
		errs = append(errs, releaseLock(w.lock))
		w.lock = nil
	}

	return errors.Join(errs...)
}

func isInvalidRange(r float64) bool {
	return math.IsNaN(r) || r < 0
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'G', -1, 64)
}

// csvLog is a header-first, line oriented comma separated log file.
type csvLog struct {
	file    *os.File
	counter *countingWriter
	csv     *csv.Writer
}

func createLog(path string, header []string) (l *csvLog, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	counter := &countingWriter{w: f}
	l = &csvLog{
		file:    f,
		counter: counter,
		csv:     csv.NewWriter(counter),
	}

	if err = l.write(header, false); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return l, nil
}

func (l *csvLog) write(record []string, sync bool) error {
	if l.file == nil {
		return ErrClosed
	}
	if err := l.csv.Write(record); err != nil {
		return err
	}

	l.csv.Flush()
	if err := l.csv.Error(); err != nil {
		return err
	}

	if sync {
		return l.file.Sync()
	}
	return nil
}

func (l *csvLog) close() error {
	if l.file == nil {
		return nil
	}

	l.csv.Flush()
	return errors.Join(l.csv.Error(), l.file.Close())
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
