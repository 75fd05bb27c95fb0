package eis

import (
	"errors"
	"math"
	"strings"
)

// ErrNilInput is returned when metadata or a sample is missing altogether.
var ErrNilInput = errors.New("input is nil")

// InvalidError describes a single failed field rule.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return e.Reason
}

func invalid(field, reason string) *InvalidError {
	return &InvalidError{Field: field, Reason: reason}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidateSample checks a sample against the numeric sanity rules. It has no
// side effects and returns an *InvalidError for the first rule that fails.
func ValidateSample(s *Sample) error {
	if s == nil {
		return ErrNilInput
	}

	switch {
	case !isFinite(s.FrequencyHz) || s.FrequencyHz <= 0:
		return invalid("FrequencyHz", "frequency must be a finite number greater than zero")
	case !isFinite(s.ROhm):
		return invalid("R_ohm", "resistive component must be a finite number")
	case !isFinite(s.XOhm):
		return invalid("X_ohm", "reactive component must be a finite number")
	case !isFinite(s.TDegC):
		return invalid("T_degC", "temperature must be a finite number")
	case !isFinite(s.RangeOhm) || s.RangeOhm < 0:
		return invalid("Range_ohm", "range must be a finite, non-negative number")
	case s.RowIndex < 0:
		return invalid("RowIndex", "row index must be non-negative")
	}

	return nil
}

// ValidateMetadata checks the session metadata supplied at open time.
func ValidateMetadata(m *Metadata) error {
	if m == nil {
		return ErrNilInput
	}

	switch {
	case strings.TrimSpace(m.BatteryID) == "":
		return invalid("BatteryId", "battery id is required")
	case strings.TrimSpace(m.TestID) == "":
		return invalid("TestId", "test id is required")
	case m.SoCPercent < 0 || m.SoCPercent > 100:
		return invalid("SoCPercent", "state of charge must be within [0..100]")
	case m.TotalRows < 0:
		return invalid("TotalRows", "planned row count must be non-negative")
	case !isPathSafe(m.BatteryID):
		return invalid("BatteryId", "battery id must not contain path elements")
	case !isPathSafe(m.TestID):
		return invalid("TestId", "test id must not contain path elements")
	}

	return nil
}

// isPathSafe rejects identifiers that would escape the data root once joined
// into the session folder.
func isPathSafe(id string) bool {
	return id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
