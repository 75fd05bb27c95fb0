package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a session is not in the catalog.
var ErrNotFound = errors.New("session not found")

// Catalog keeps a durable history of ingestion sessions: what was opened, for
// which battery, test and state of charge, and how it ended. It is safe for
// concurrent use.
type Catalog interface {
	// SessionStarted records a freshly opened session.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - rec: Session record; ID, metadata, Folder and StartedAt must be set
	//
	// Returns:
	//   - error: If the record could not be stored or context is cancelled
	SessionStarted(ctx context.Context, rec *SessionRecord) error

	// SessionEnded stores the final status and counters of a session
	// identified by rec.ID.
	//
	// Returns:
	//   - error: ErrNotFound if the session was never recorded, or a storage error
	SessionEnded(ctx context.Context, rec *SessionRecord) error

	// Session retrieves a session by its identifier.
	//
	// Returns:
	//   - session: Pointer to the record
	//   - error: ErrNotFound if the session does not exist, or a storage error
	Session(ctx context.Context, id string) (*SessionRecord, error)

	// Sessions returns all sessions ordered by start time in ascending order.
	Sessions(ctx context.Context) ([]*SessionRecord, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
