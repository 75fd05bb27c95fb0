package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/eis-ingest/internal/eis"
)

var (
	// ErrMetadataInvalid is returned by Open when the session metadata fails validation.
	ErrMetadataInvalid = errors.New("session metadata is invalid")

	// ErrAllocationFailed is returned by Open when a fresh identifier could not be allocated.
	ErrAllocationFailed = errors.New("session allocation failed")

	// ErrUnknownSession describes a session identifier that is not open.
	ErrUnknownSession = errors.New("unknown session")
)

const (
	Accepted Outcome = iota + 1
	OutOfOrder
	UnknownSession
	Closed
)

// Outcome is the result of a registry operation on a session.
type Outcome int

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case OutOfOrder:
		return "out of order"
	case UnknownSession:
		return "unknown session"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Option configures a Store.
type Option func(*config)

type config struct {
	policy eis.QuotaPolicy
	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithQuotaPolicy sets the policy that decides whether an over-quota row may
// move the cursor out of order.
func WithQuotaPolicy(policy eis.QuotaPolicy) Option {
	return func(c *config) {
		c.policy = policy
	}
}

// WithIDGenerator replaces the session identifier generator.
func WithIDGenerator(gen func() string) Option {
	return func(c *config) {
		c.newID = gen
	}
}

// WithClock overrides the clock used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// Store is the registry of open sessions. Insert, lookup and removal are
// atomic per key; the ordering state of a session is guarded by a lock
// scoped to that session only, so calls for different sessions never
// serialise on each other.
// W is the durable sink each session owns exclusively.
type Store[W io.Closer] struct {
	mu       sync.RWMutex
	sessions map[string]*Session[W]

	config
}

// NewStore creates an empty session registry with a discard logger.
func NewStore[W io.Closer](options ...Option) *Store[W] {
	s := Store[W]{
		sessions: make(map[string]*Session[W]),
		config: config{
			policy: eis.QuotaAdvance,
			newID:  newID,
			now:    time.Now,
			logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	}

	for _, option := range options {
		option(&s.config)
	}

	return &s
}

// newID returns a random identifier in the compact 32 hex digit form.
func newID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}

// Open validates the metadata, allocates a fresh identifier and registers a
// new session with its cursor set to -1. The writer becomes owned by the
// session.
func (s *Store[W]) Open(meta *eis.Metadata, w W) (string, error) {
	if err := eis.ValidateMetadata(meta); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMetadataInvalid, err)
	}

	id := s.newID()
	if id == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrAllocationFailed)
	}

	now := s.now()
	sess := &Session[W]{
		id:       id,
		meta:     *meta,
		cursor:   -1,
		writer:   w,
		openedAt: now,
	}
	sess.touch(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		return "", fmt.Errorf("%w: store is closed", ErrAllocationFailed)
	}
	if _, exists := s.sessions[id]; exists {
		return "", fmt.Errorf("%w: identifier collision", ErrAllocationFailed)
	}
	s.sessions[id] = sess

	s.logger.Debug("session opened", slog.String("sessionID", id))
	return id, nil
}

// Acquire looks up a session and locks it for exclusive use by the caller.
// The returned Handle must be released. ok is false when the session is not
// open, including when it was closed while the caller waited for the lock.
func (s *Store[W]) Acquire(id string) (h *Handle[W], ok bool) {
	s.mu.RLock()
	sess, exists := s.sessions[id]
	s.mu.RUnlock()

	if !exists {
		return nil, false
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, false
	}
	sess.touch(s.now())

	return &Handle[W]{session: sess, policy: s.policy}, true
}

// Advance moves the cursor of a session to row. It is shorthand for
// Acquire, Handle.Advance and Handle.Release.
func (s *Store[W]) Advance(id string, row int) Outcome {
	h, ok := s.Acquire(id)
	if !ok {
		return UnknownSession
	}
	defer h.Release()

	return h.Advance(row)
}

// Close removes a session from the registry and hands it back to the caller,
// who becomes responsible for closing its writer. Close waits for an
// in-flight call on the same session to finish.
func (s *Store[W]) Close(id string) (*Session[W], Outcome) {
	s.mu.Lock()
	sess, exists := s.sessions[id]
	if exists {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !exists {
		return nil, UnknownSession
	}

	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()

	s.logger.Debug("session closed", slog.String("sessionID", id))
	return sess, Closed
}

// Idle returns the identifiers of sessions untouched for longer than olderThan.
// It never waits on a session that is in use.
func (s *Store[W]) Idle(olderThan time.Duration) []string {
	deadline := s.now().Add(-olderThan)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, sess := range s.sessions {
		if sess.idleSince(deadline) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Evict removes every session that has not been touched for longer than idle
// and returns them to the caller. A session that is in use is marked closed
// once its current holder releases it.
func (s *Store[W]) Evict(idle time.Duration) []*Session[W] {
	deadline := s.now().Add(-idle)

	var evicted []*Session[W]

	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.idleSince(deadline) {
			delete(s.sessions, id)
			evicted = append(evicted, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range evicted {
		sess.mu.Lock()
		sess.closed = true
		sess.mu.Unlock()
	}

	return evicted
}

// CloseAll removes every open session and returns them to the caller. The
// store accepts no new sessions afterwards.
func (s *Store[W]) CloseAll() []*Session[W] {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	all := make([]*Session[W], 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		sess.closed = true
		sess.mu.Unlock()

		all = append(all, sess)
	}

	return all
}

// Len returns the number of open sessions.
func (s *Store[W]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
