package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// SqliteCatalog stores the session catalog in a SQLite database
type SqliteCatalog struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Catalog = (*SqliteCatalog)(nil)

// NewSqliteCatalog creates a catalog backed by the SQLite database at dbPath.
// The database and its schema are created lazily on first use.
func NewSqliteCatalog(dbPath string) *SqliteCatalog {
	return &SqliteCatalog{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteCatalog) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		// a single writer connection avoids SQLITE_BUSY between our own goroutines
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteCatalog) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the schema has to exist before a read-only connection can query it
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteCatalog) SessionStarted(ctx context.Context, rec *SessionRecord) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	status := rec.Status
	if status == "" {
		status = StatusInProgress
	}

	_, err = stmt.ExecContext(
		ctx,
		rec.ID,
		rec.BatteryID,
		rec.TestID,
		rec.SoCPercent,
		rec.FileName,
		rec.PlannedRows,
		rec.Folder,
		string(status),
		rec.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *SqliteCatalog) SessionEnded(ctx context.Context, rec *SessionRecord) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(
		ctx,
		updateSessionSQL,
		string(rec.Status),
		toNullTime(rec.EndedAt),
		rec.AcceptedRows,
		rec.RejectedRows,
		rec.BytesWritten,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating session %s: %w", rec.ID, ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteCatalog) Session(ctx context.Context, id string) (session *SessionRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	session, err = scanSession(stmt.QueryRowContext(ctx, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = fmt.Errorf("session %s: %w", id, ErrNotFound)
	case err != nil:
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteCatalog) Sessions(ctx context.Context) (sessions []*SessionRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *SessionRecord
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}

	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func (s *SqliteCatalog) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if s.readDB != nil {
			errs = append(errs, s.readDB.Close())
			s.readDB = nil
		}

		if s.writeDB != nil {
			errs = append(errs, s.writeDB.Close())
			s.writeDB = nil
		}

		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}
