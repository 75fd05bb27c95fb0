package storage

import (
	"time"
)

// Status is the lifecycle state of a catalogued session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusEvicted    Status = "evicted"
	StatusAborted    Status = "aborted"
)

// SessionRecord is the catalog entry of one ingestion session
type SessionRecord struct {
	ID           string     `json:"id"`
	BatteryID    string     `json:"batteryId"`
	TestID       string     `json:"testId"`
	SoCPercent   int        `json:"socPercent"`
	FileName     string     `json:"fileName"`
	PlannedRows  int        `json:"plannedRows"`
	Folder       string     `json:"folder"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	AcceptedRows int        `json:"acceptedRows"`
	RejectedRows int        `json:"rejectedRows"`
	BytesWritten int64      `json:"bytesWritten"`
}
