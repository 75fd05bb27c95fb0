package eis

import (
	"fmt"
	"path/filepath"
	"time"
)

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Status is the transfer status reported back to the client with every Ack.
type Status string

const (
	// QuotaAdvance rejects rows at or beyond the planned row count, logs them
	// and still advances the ordering cursor.
	QuotaAdvance QuotaPolicy = "advance"

	// QuotaOff treats the planned row count as informational only. Clients are
	// then expected to cap their own sends.
	QuotaOff QuotaPolicy = "off"
)

// QuotaPolicy controls how rows beyond the declared plan are handled.
type QuotaPolicy string

// ParseQuotaPolicy converts a configuration value into a QuotaPolicy. An empty
// value selects QuotaAdvance.
func ParseQuotaPolicy(s string) (QuotaPolicy, error) {
	switch QuotaPolicy(s) {
	case "", QuotaAdvance:
		return QuotaAdvance, nil
	case QuotaOff:
		return QuotaOff, nil
	default:
		return "", fmt.Errorf("unknown quota policy '%s'", s)
	}
}

// Metadata describes a measurement session. It is supplied once, when the
// session is opened, and never changes afterwards.
type Metadata struct {
	BatteryID  string `json:"batteryId"`  // Battery identifier, e.g. "B01"
	TestID     string `json:"testId"`     // Test identifier, e.g. "Test_1"
	SoCPercent int    `json:"socPercent"` // State of charge, 0-100
	FileName   string `json:"fileName"`   // Source file name, informational
	TotalRows  int    `json:"totalRows"`  // Planned number of samples, 0 if not declared
}

// Folder returns the storage location of the session below root.
func (m *Metadata) Folder(root string) string {
	return filepath.Join(root, m.BatteryID, m.TestID, fmt.Sprintf("%d%%", m.SoCPercent))
}

// OverQuota reports whether row lies at or beyond the declared plan.
func (m *Metadata) OverQuota(row int, policy QuotaPolicy) bool {
	if policy == QuotaOff || m.TotalRows <= 0 {
		return false
	}
	return row >= m.TotalRows
}

// Sample is a single impedance measurement row. RowIndex is the only ordering key.
type Sample struct {
	RowIndex       int       `json:"rowIndex"`
	FrequencyHz    float64   `json:"frequencyHz"`    // Excitation frequency in Hz
	ROhm           float64   `json:"rOhm"`           // Resistive component in ohm
	XOhm           float64   `json:"xOhm"`           // Reactive component in ohm
	TDegC          float64   `json:"tDegC"`          // Cell temperature in °C
	RangeOhm       float64   `json:"rangeOhm"`       // Instrument range in ohm
	TimestampLocal time.Time `json:"timestampLocal"` // Capture time
}

// Ack is the response to every protocol call. Message always explains the
// outcome, in particular when Ok is false.
type Ack struct {
	Ok        bool   `json:"ok"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Status    Status `json:"status"`
}
