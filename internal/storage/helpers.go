package storage

import (
	"database/sql"
	"errors"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		rec     SessionRecord
		status  string
		endedAt sql.NullTime
	)

	err := row.Scan(
		&rec.ID,
		&rec.BatteryID,
		&rec.TestID,
		&rec.SoCPercent,
		&rec.FileName,
		&rec.PlannedRows,
		&rec.Folder,
		&status,
		&rec.StartedAt,
		&endedAt,
		&rec.AcceptedRows,
		&rec.RejectedRows,
		&rec.BytesWritten,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	return &rec, nil
}
