package session

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/eis-ingest/internal/eis"
)

// Session is the per-session state held by the registry.
type Session[W io.Closer] struct {
	mu sync.Mutex

	id     string
	meta   eis.Metadata
	cursor int
	writer W
	closed bool

	openedAt time.Time
	// unix nanoseconds; read by the idle sweep without taking mu
	touchedAt atomic.Int64
}

// ID returns the session identifier.
func (s *Session[W]) ID() string { return s.id }

// Meta returns a copy of the metadata the session was opened with.
func (s *Session[W]) Meta() eis.Metadata { return s.meta }

// Writer returns the durable sink owned by the session.
func (s *Session[W]) Writer() W { return s.writer }

// OpenedAt returns the time the session was registered.
func (s *Session[W]) OpenedAt() time.Time { return s.openedAt }

// Cursor returns the highest row index that has advanced the session.
func (s *Session[W]) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor
}

func (s *Session[W]) touch(now time.Time) { s.touchedAt.Store(now.UnixNano()) }

func (s *Session[W]) idleSince(deadline time.Time) bool {
	return s.touchedAt.Load() < deadline.UnixNano()
}

// Handle is exclusive access to one open session. It is obtained from
// Store.Acquire and must be released with Release.
type Handle[W io.Closer] struct {
	session *Session[W]
	policy  eis.QuotaPolicy
}

// ID returns the session identifier.
func (h *Handle[W]) ID() string { return h.session.id }

// Meta returns the session metadata.
func (h *Handle[W]) Meta() eis.Metadata { return h.session.meta }

// Writer returns the durable sink owned by the session.
func (h *Handle[W]) Writer() W { return h.session.writer }

// Cursor returns the current cursor.
func (h *Handle[W]) Cursor() int { return h.session.cursor }

// Check reports whether row may be taken by the session without touching the
// cursor. A row is in order when it is exactly cursor+1. A row beyond the
// planned row count is always let through, so it can be recorded as over
// quota.
func (h *Handle[W]) Check(row int) Outcome {
	if row == h.session.cursor+1 || h.session.meta.OverQuota(row, h.policy) {
		return Accepted
	}
	return OutOfOrder
}

// Advance moves the cursor to row when the row is next in order, or to
// max(cursor, row) when the row is over quota. Any other row leaves the
// cursor untouched and yields OutOfOrder.
func (h *Handle[W]) Advance(row int) Outcome {
	sess := h.session

	switch {
	case row == sess.cursor+1:
		sess.cursor = row
	case sess.meta.OverQuota(row, h.policy):
		sess.cursor = max(sess.cursor, row)
	default:
		return OutOfOrder
	}
	return Accepted
}

// Release gives up exclusive access to the session. The Handle must not be
// used afterwards.
func (h *Handle[W]) Release() {
	h.session.mu.Unlock()
}
