package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/eis-ingest/internal/eis"
	"github.com/roman-kulish/eis-ingest/internal/ingest"
)

// DefaultMaxRows is the number of rows a session announces at most.
const DefaultMaxRows = 28

// Protocol is the ingestion protocol as seen by the importer.
type Protocol interface {
	StartSession(ctx context.Context, meta *eis.Metadata) (eis.Ack, error)
	PushSample(ctx context.Context, id string, sample *eis.Sample) (eis.Ack, error)
	EndSession(ctx context.Context, id string) (eis.Ack, error)
}

// FileResult summarises the import of a single file.
type FileResult struct {
	Path     string
	Planned  int
	Sent     int
	Accepted int
	Rejected int
	Bad      int
	Status   eis.Status
}

// Summary summarises an import run.
type Summary struct {
	Files    int
	Imported int
	Failed   int
	Accepted int
	Rejected int
}

// WithLogger sets the logger for the importer
func WithLogger(logger *slog.Logger) func(*Importer) {
	return func(im *Importer) {
		im.logger = logger
	}
}

// WithMaxRows sets how many rows a session announces at most. Zero announces
// every row of the file.
func WithMaxRows(n int) func(*Importer) {
	return func(im *Importer) {
		im.maxRows = n
	}
}

// WithCapRows stops sending a file once the announced row count is reached,
// instead of leaving over-quota rows to the server.
func WithCapRows(capRows bool) func(*Importer) {
	return func(im *Importer) {
		im.capRows = capRows
	}
}

// WithClock overrides the clock used to stamp samples.
func WithClock(now func() time.Time) func(*Importer) {
	return func(im *Importer) {
		im.now = now
	}
}

// Importer walks a dataset and streams every measurement file through one
// ingestion session.
type Importer struct {
	proto   Protocol
	maxRows int
	capRows bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewImporter creates an importer sending data through proto.
func NewImporter(proto Protocol, options ...func(*Importer)) *Importer {
	im := Importer{
		proto:   proto,
		maxRows: DefaultMaxRows,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&im)
	}

	return &im
}

// Run imports every file found below root. A failing file is logged and
// skipped; Run only fails when the dataset cannot be listed or ctx is done.
func (im *Importer) Run(ctx context.Context, root string) (Summary, error) {
	var sum Summary

	files, err := Discover(root)
	if err != nil {
		return sum, err
	}

	sum.Files = len(files)
	im.logger.Info("starting import", slog.String("root", root), slog.Int("files", len(files)))
	if len(files) == 0 {
		im.logger.Warn("no CSV files found", slog.String("root", root))
		return sum, nil
	}

	for _, path := range files {
		if err = ctx.Err(); err != nil {
			return sum, err
		}

		res, err := im.ImportFile(ctx, path)
		sum.Accepted += res.Accepted
		sum.Rejected += res.Rejected

		if err != nil {
			sum.Failed++
			im.logFailure(path, err)
			continue
		}

		sum.Imported++
		im.logger.Info("file imported",
			slog.String("file", path),
			slog.Int("accepted", res.Accepted),
			slog.Int("planned", res.Planned),
			slog.Int("rejected", res.Rejected),
			slog.Int("bad", res.Bad),
			slog.String("status", string(res.Status)))
	}

	im.logger.Info("import finished",
		slog.Int("files", sum.Files),
		slog.Int("imported", sum.Imported),
		slog.Int("failed", sum.Failed))
	return sum, nil
}

// ImportFile streams a single file through one session. Row indexes are
// assigned to the parsed rows in order, so a skipped bad line does not
// leave a gap the server would treat as out of order.
func (im *Importer) ImportFile(ctx context.Context, path string) (FileResult, error) {
	res := FileResult{Path: path}

	f, err := ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("reading %s: %w", path, err)
	}

	res.Planned = len(f.Lines)
	if im.maxRows > 0 {
		res.Planned = min(im.maxRows, len(f.Lines))
	}

	meta := f.Meta(res.Planned)
	ack, err := im.proto.StartSession(ctx, &meta)
	if err != nil {
		return res, err
	}
	if !ack.Ok {
		return res, fmt.Errorf("session refused: %s", ack.Message)
	}
	id := ack.SessionID

	for i, line := range f.Lines {
		if im.capRows && res.Sent >= res.Planned {
			break
		}

		sample, err := f.ParseSample(line, res.Sent, im.now())
		if err != nil {
			res.Bad++
			im.logger.Warn("bad line", slog.String("file", path), slog.Int("line", i), slog.String("reason", err.Error()))
			continue
		}

		ack, err := im.proto.PushSample(ctx, id, &sample)
		if err != nil {
			// end the session so its output folder is released
			if _, endErr := im.proto.EndSession(ctx, id); endErr != nil {
				err = errors.Join(err, endErr)
			}
			return res, err
		}

		res.Sent++
		if ack.Ok {
			res.Accepted++
		} else {
			res.Rejected++
			im.logger.Info("row rejected", slog.String("file", path), slog.Int("line", i), slog.String("reason", ack.Message))
		}
	}

	ack, err = im.proto.EndSession(ctx, id)
	if err != nil {
		return res, err
	}
	res.Status = ack.Status
	return res, nil
}

func (im *Importer) logFailure(path string, err error) {
	if fault, ok := ingest.AsFault(err); ok {
		im.logger.Error("import fault",
			slog.String("file", path),
			slog.String("kind", string(fault.Kind)),
			slog.String("reason", fault.Reason))
		return
	}
	im.logger.Error("import failed", slog.String("file", path), slog.Any("error", err))
}
