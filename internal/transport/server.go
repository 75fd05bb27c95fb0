package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/roman-kulish/eis-ingest/internal/eis"
	"github.com/roman-kulish/eis-ingest/internal/ingest"
	"github.com/roman-kulish/eis-ingest/internal/storage"
)

const maxBodySize = 1 << 20

// Service is the ingestion protocol as served over HTTP.
type Service interface {
	StartSession(ctx context.Context, meta *eis.Metadata) (eis.Ack, error)
	PushSample(ctx context.Context, id string, sample *eis.Sample) (eis.Ack, error)
	EndSession(ctx context.Context, id string) (eis.Ack, error)

	ActiveSessions() int
	Session(ctx context.Context, id string) (*storage.SessionRecord, error)
	Sessions(ctx context.Context) ([]*storage.SessionRecord, error)
}

var _ Service = (*ingest.Service)(nil)

// Health is the body of the health endpoint.
type Health struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
}

type errorBody struct {
	Error string `json:"error"`
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server binds the ingestion protocol to HTTP with JSON bodies. Acks are
// always sent with status 200; faults are sent with 422 for validation and
// 500 for data format problems.
type Server struct {
	svc    Service
	router chi.Router
	logger *slog.Logger
}

// NewServer creates the HTTP handler of svc.
func NewServer(svc Service, options ...func(*Server)) *Server {
	s := Server{
		svc:    svc,
		router: chi.NewRouter(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	s.setupRoutes()
	return &s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Post("/{id}/samples", s.handlePushSample)
		r.Delete("/{id}", s.handleEndSession)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, Health{Status: "ok", ActiveSessions: s.svc.ActiveSessions()})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var meta *eis.Metadata
	if !s.decode(w, r, &meta) {
		return
	}

	ack, err := s.svc.StartSession(r.Context(), meta)
	s.writeAck(w, ack, err)
}

func (s *Server) handlePushSample(w http.ResponseWriter, r *http.Request) {
	var sample *eis.Sample
	if !s.decode(w, r, &sample) {
		return
	}

	ack, err := s.svc.PushSample(r.Context(), chi.URLParam(r, "id"), sample)
	s.writeAck(w, ack, err)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	ack, err := s.svc.EndSession(r.Context(), chi.URLParam(r, "id"))
	s.writeAck(w, ack, err)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.Sessions(r.Context())
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*storage.SessionRecord{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, &ingest.Fault{
			Kind:   ingest.FaultValidation,
			Reason: "malformed request body: " + err.Error(),
		})
		return false
	}
	return true
}

func (s *Server) writeAck(w http.ResponseWriter, ack eis.Ack, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, ack)
		return
	}

	fault, ok := ingest.AsFault(err)
	if !ok {
		s.logger.Error("unexpected service error", slog.Any("error", err))
		fault = &ingest.Fault{Kind: ingest.FaultDataFormat, Reason: "internal error"}
	}

	status := http.StatusInternalServerError
	if fault.Kind == ingest.FaultValidation {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, fault)
}

func (s *Server) writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrNoCatalog):
		s.writeJSON(w, http.StatusNotImplemented, errorBody{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		s.logger.Error("catalog query failed", slog.Any("error", err))
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "catalog query failed"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", slog.Any("error", err))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(started)),
			slog.String("requestID", middleware.GetReqID(r.Context())))
	})
}
