package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/metric"

	"github.com/roman-kulish/eis-ingest/internal/eis"
	"github.com/roman-kulish/eis-ingest/internal/session"
	"github.com/roman-kulish/eis-ingest/internal/storage"
	"github.com/roman-kulish/eis-ingest/internal/writer"
)

const (
	msgOpened    = "session opened"
	msgOK        = "OK"
	msgCompleted = "completed"

	reasonOutOfOrder = "out of order"
	reasonValidation = "validation"
)

// ErrNoCatalog is returned by catalog queries when the service runs without one.
var ErrNoCatalog = errors.New("session catalog is not configured")

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) func(*Service) {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCatalog records session lifecycle events in the given catalog.
func WithCatalog(catalog storage.Catalog) func(*Service) {
	return func(s *Service) {
		s.catalog = catalog
	}
}

// WithQuotaPolicy sets how rows beyond the planned row count are handled.
func WithQuotaPolicy(policy eis.QuotaPolicy) func(*Service) {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithSyncWrites makes every persisted row fsync'ed.
func WithSyncWrites(sync bool) func(*Service) {
	return func(s *Service) {
		s.syncWrites = sync
	}
}

// WithMeter sets the meter used for ingest metrics. The global meter provider
// is used by default.
func WithMeter(meter metric.Meter) func(*Service) {
	return func(s *Service) {
		s.meter = meter
	}
}

// WithClock overrides the clock of the service and everything it creates.
func WithClock(now func() time.Time) func(*Service) {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator replaces the session identifier generator.
func WithIDGenerator(gen func() string) func(*Service) {
	return func(s *Service) {
		s.newID = gen
	}
}

// Service implements the three-call ingestion protocol: StartSession,
// PushSample and EndSession. It is safe for concurrent use; calls for
// different sessions run in parallel, calls for the same session are
// serialised.
type Service struct {
	dataRoot   string
	policy     eis.QuotaPolicy
	syncWrites bool
	newID      func() string
	now        func() time.Time

	store   *session.Store[*writer.Writer]
	catalog storage.Catalog
	meter   metric.Meter
	metrics *metrics
	logger  *slog.Logger
}

// New creates an ingestion service writing session folders below dataRoot.
func New(dataRoot string, options ...func(*Service)) (*Service, error) {
	s := Service{
		dataRoot: dataRoot,
		policy:   eis.QuotaAdvance,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	m, err := newMetrics(s.meter)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}
	s.metrics = m

	storeOptions := []session.Option{
		session.WithLogger(s.logger),
		session.WithQuotaPolicy(s.policy),
		session.WithClock(s.now),
	}
	if s.newID != nil {
		storeOptions = append(storeOptions, session.WithIDGenerator(s.newID))
	}
	s.store = session.NewStore[*writer.Writer](storeOptions...)

	return &s, nil
}

// StartSession opens a session for the given metadata and creates its
// output folder. Any previous output of the same battery, test and state of
// charge is truncated.
func (s *Service) StartSession(ctx context.Context, meta *eis.Metadata) (eis.Ack, error) {
	if err := eis.ValidateMetadata(meta); err != nil {
		return s.fail(ctx, FaultValidation, err.Error())
	}

	w, err := writer.New(s.dataRoot, *meta,
		writer.WithQuotaPolicy(s.policy),
		writer.WithSync(s.syncWrites),
		writer.WithClock(s.now),
	)
	if err != nil {
		s.logger.Error("failed to create session writer", metaAttrs(meta), slog.Any("error", err))
		return s.fail(ctx, FaultDataFormat, fmt.Sprintf("failed to open session: %v", err))
	}

	id, err := s.store.Open(meta, w)
	if err != nil {
		_ = w.Close()

		if errors.Is(err, session.ErrMetadataInvalid) {
			return s.fail(ctx, FaultValidation, err.Error())
		}
		s.logger.Error("failed to register session", metaAttrs(meta), slog.Any("error", err))
		return s.fail(ctx, FaultDataFormat, "failed to open session")
	}

	s.recordStarted(ctx, id, meta, w.Folder())
	s.metrics.sessionStarted(ctx)
	s.logger.Info("session opened",
		slog.String("sessionID", id),
		metaAttrs(meta),
		slog.String("folder", w.Folder()))

	return eis.Ack{Ok: true, Message: msgOpened, SessionID: id, Status: eis.StatusInProgress}, nil
}

// PushSample validates a sample and hands it to the session's writer. The
// returned Ack is Ok only when the row landed in the accepted log.
func (s *Service) PushSample(ctx context.Context, id string, sample *eis.Sample) (eis.Ack, error) {
	if err := eis.ValidateSample(sample); err != nil {
		if sample != nil {
			s.rejectInvalid(ctx, id, sample, err.Error())
		}
		return s.fail(ctx, FaultValidation, err.Error())
	}

	h, ok := s.store.Acquire(id)
	if !ok {
		return s.fail(ctx, FaultValidation, session.ErrUnknownSession.Error())
	}
	defer h.Release()

	w := h.Writer()
	row := sample.RowIndex

	if h.Check(row) == session.OutOfOrder {
		reason := fmt.Sprintf("%s: expected row %d, got %d", reasonOutOfOrder, h.Cursor()+1, row)
		if err := w.Reject(*sample, reason); err != nil {
			s.logger.Error("failed to record rejected row", slog.String("sessionID", id), slog.Int("row", row), slog.Any("error", err))
			return s.fail(ctx, FaultDataFormat, fmt.Sprintf("failed to persist row %d", row))
		}

		s.metrics.sampleRejected(ctx, reasonOutOfOrder)
		s.logger.Debug("sample rejected", slog.String("sessionID", id), slog.Int("row", row), slog.String("reason", reason))
		return eis.Ack{Ok: false, Message: reason, SessionID: id, Status: eis.StatusInProgress}, nil
	}

	res, err := w.Append(*sample)
	if err != nil {
		s.logger.Error("failed to append row", slog.String("sessionID", id), slog.Int("row", row), slog.Any("error", err))
		return s.fail(ctx, FaultDataFormat, fmt.Sprintf("failed to persist row %d", row))
	}

	if res.Advance {
		if outcome := h.Advance(row); outcome != session.Accepted {
			// Check passed under the same lock, so this is a broken invariant
			s.logger.Error("cursor did not advance", slog.String("sessionID", id), slog.Int("row", row), slog.String("outcome", outcome.String()))
			return s.fail(ctx, FaultDataFormat, fmt.Sprintf("failed to advance past row %d", row))
		}
	}

	if !res.Accepted {
		s.metrics.sampleRejected(ctx, res.Reason)
		s.logger.Debug("sample rejected", slog.String("sessionID", id), slog.Int("row", row), slog.String("reason", res.Reason))
		return eis.Ack{Ok: false, Message: res.Reason, SessionID: id, Status: eis.StatusInProgress}, nil
	}

	s.metrics.sampleAccepted(ctx)
	return eis.Ack{Ok: true, Message: msgOK, SessionID: id, Status: eis.StatusInProgress}, nil
}

// EndSession closes a session and finalises its logs. An unknown session is
// not a fault.
func (s *Service) EndSession(ctx context.Context, id string) (eis.Ack, error) {
	sess, outcome := s.store.Close(id)
	if outcome == session.UnknownSession {
		return eis.Ack{Ok: false, Message: session.ErrUnknownSession.Error(), SessionID: id, Status: eis.StatusInProgress}, nil
	}

	if err := s.finish(ctx, sess, storage.StatusCompleted); err != nil {
		return s.fail(ctx, FaultDataFormat, "failed to finalize session")
	}

	return eis.Ack{Ok: true, Message: msgCompleted, SessionID: id, Status: eis.StatusCompleted}, nil
}

// Evict closes every session that has been idle for longer than idle and
// returns how many were closed.
func (s *Service) Evict(ctx context.Context, idle time.Duration) int {
	evicted := s.store.Evict(idle)
	for _, sess := range evicted {
		s.logger.Warn("evicting idle session", slog.String("sessionID", sess.ID()), slog.Duration("idle", idle))
		_ = s.finish(ctx, sess, storage.StatusEvicted)
		s.metrics.sessionEvicted(ctx)
	}
	return len(evicted)
}

// RunEvictor evicts idle sessions every interval until ctx is done.
func (s *Service) RunEvictor(ctx context.Context, interval, idle time.Duration) error {
	if interval <= 0 || idle <= 0 {
		return fmt.Errorf("invalid eviction settings: interval %s, idle %s", interval, idle)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Evict(ctx, idle); n > 0 {
				s.logger.Info("idle sessions evicted", slog.Int("count", n))
			}
		}
	}
}

// ActiveSessions returns the number of open sessions.
func (s *Service) ActiveSessions() int {
	return s.store.Len()
}

// Session returns the catalog record of a session.
func (s *Service) Session(ctx context.Context, id string) (*storage.SessionRecord, error) {
	if s.catalog == nil {
		return nil, ErrNoCatalog
	}
	return s.catalog.Session(ctx, id)
}

// Sessions returns the catalog records of all sessions.
func (s *Service) Sessions(ctx context.Context) ([]*storage.SessionRecord, error) {
	if s.catalog == nil {
		return nil, ErrNoCatalog
	}
	return s.catalog.Sessions(ctx)
}

// Close finalises every open session. Sessions closed this way are marked
// aborted in the catalog.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for _, sess := range s.store.CloseAll() {
		if err := s.finish(ctx, sess, storage.StatusAborted); err != nil {
			errs = append(errs, fmt.Errorf("closing session %s: %w", sess.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) finish(ctx context.Context, sess *session.Session[*writer.Writer], status storage.Status) error {
	w := sess.Writer()
	closeErr := w.Close()
	st := w.Stats()
	ended := s.now()

	if closeErr != nil {
		s.logger.Error("failed to close session writer", slog.String("sessionID", sess.ID()), slog.Any("error", closeErr))
	}

	if s.catalog != nil {
		rec := storage.SessionRecord{
			ID:           sess.ID(),
			Status:       status,
			EndedAt:      &ended,
			AcceptedRows: st.Accepted,
			RejectedRows: st.Rejected,
			BytesWritten: st.Bytes,
		}
		// a catalog failure never fails the protocol call
		if err := s.catalog.SessionEnded(context.WithoutCancel(ctx), &rec); err != nil {
			s.logger.Warn("failed to record session end", slog.String("sessionID", sess.ID()), slog.Any("error", err))
		}
	}

	s.metrics.sessionEnded(ctx, string(status))
	s.logger.Info("session closed",
		slog.String("sessionID", sess.ID()),
		slog.String("status", string(status)),
		slog.Int("accepted", st.Accepted),
		slog.Int("rejected", st.Rejected),
		slog.String("written", humanize.Bytes(uint64(st.Bytes))),
		slog.Duration("duration", ended.Sub(sess.OpenedAt())))

	return closeErr
}

func (s *Service) recordStarted(ctx context.Context, id string, meta *eis.Metadata, folder string) {
	if s.catalog == nil {
		return
	}

	rec := storage.SessionRecord{
		ID:          id,
		BatteryID:   meta.BatteryID,
		TestID:      meta.TestID,
		SoCPercent:  meta.SoCPercent,
		FileName:    meta.FileName,
		PlannedRows: meta.TotalRows,
		Folder:      folder,
		Status:      storage.StatusInProgress,
		StartedAt:   s.now(),
	}
	if err := s.catalog.SessionStarted(context.WithoutCancel(ctx), &rec); err != nil {
		s.logger.Warn("failed to record session start", slog.String("sessionID", id), slog.Any("error", err))
	}
}

// rejectInvalid records a sample that failed validation in the rejects log of
// its session, if the session is open. The cursor is not touched.
func (s *Service) rejectInvalid(ctx context.Context, id string, sample *eis.Sample, reason string) {
	h, ok := s.store.Acquire(id)
	if !ok {
		return
	}
	defer h.Release()

	if err := h.Writer().Reject(*sample, reason); err != nil {
		s.logger.Warn("failed to record invalid sample", slog.String("sessionID", id), slog.Any("error", err))
		return
	}
	s.metrics.sampleRejected(ctx, reasonValidation)
}

func (s *Service) fail(ctx context.Context, kind FaultKind, reason string) (eis.Ack, error) {
	s.metrics.fault(ctx, kind)
	return eis.Ack{}, &Fault{Kind: kind, Reason: reason}
}

func metaAttrs(meta *eis.Metadata) slog.Attr {
	return slog.Group("meta",
		slog.String("batteryID", meta.BatteryID),
		slog.String("testID", meta.TestID),
		slog.Int("soc", meta.SoCPercent),
		slog.Int("plannedRows", meta.TotalRows),
		slog.String("fileName", meta.FileName))
}
