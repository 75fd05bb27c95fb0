package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    battery_id    TEXT     NOT NULL,
    test_id       TEXT     NOT NULL,
    soc_percent   INTEGER  NOT NULL,
    file_name     TEXT     NOT NULL DEFAULT '',
    planned_rows  INTEGER  NOT NULL DEFAULT 0,
    folder        TEXT     NOT NULL,
    status        TEXT     NOT NULL,
    started_at    DATETIME NOT NULL,
    ended_at      DATETIME,
    accepted_rows INTEGER  NOT NULL DEFAULT 0,
    rejected_rows INTEGER  NOT NULL DEFAULT 0,
    bytes_written INTEGER  NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_test ON sessions (battery_id, test_id, soc_percent);`

	insertSessionSQL = `
INSERT INTO sessions (id,
                      battery_id,
                      test_id,
                      soc_percent,
                      file_name,
                      planned_rows,
                      folder,
                      status,
                      started_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateSessionSQL = `
UPDATE sessions
SET status        = ?,
    ended_at      = ?,
    accepted_rows = ?,
    rejected_rows = ?,
    bytes_written = ?
WHERE id = ?`

	selectSessionColumns = `
SELECT
    id,
    battery_id,
    test_id,
    soc_percent,
    file_name,
    planned_rows,
    folder,
    status,
    started_at,
    ended_at,
    accepted_rows,
    rejected_rows,
    bytes_written
FROM sessions`

	selectSessionSQL = selectSessionColumns + `
WHERE
    id = ?`

	selectSessionsSQL = selectSessionColumns + `
ORDER BY started_at, id`
)
