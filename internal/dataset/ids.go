package dataset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

const (
	DefaultBatteryID = "Bxx"
	DefaultTestID    = "Test_1"
)

var (
	batteryRe = regexp.MustCompile(`(?i)/B(\d{1,3})/`)
	testRe    = regexp.MustCompile(`(?i)/Test[_\- ]?(\d{1,2})/`)
	socPctRe  = regexp.MustCompile(`(\d{1,3})\s*%`)
	socNameRe = regexp.MustCompile(`(?i)SoC(?:[_\-\s]*C)?[_\-\s]*(\d{1,3})(?:\D|$)`)
)

// BatteryID extracts the battery identifier from a directory named like
// "B1" or "b007" anywhere in path. The number is zero padded to two digits.
func BatteryID(path string) string {
	m := batteryRe.FindStringSubmatch("/" + filepath.ToSlash(path))
	if m == nil {
		return DefaultBatteryID
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultBatteryID
	}
	return fmt.Sprintf("B%02d", n)
}

// TestID extracts the test identifier from a directory named like "Test_2",
// "test-2" or "Test 2" anywhere in path.
func TestID(path string) string {
	m := testRe.FindStringSubmatch("/" + filepath.ToSlash(path))
	if m == nil {
		return DefaultTestID
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultTestID
	}
	return fmt.Sprintf("Test_%d", n)
}

// SoCPercent extracts the state of charge from a file name without its
// extension, e.g. "EIS_50%" or "SoC_C_80". The result is clamped to [0..100];
// 0 is returned when nothing matches.
func SoCPercent(name string) int {
	m := socPctRe.FindStringSubmatch(name)
	if m == nil {
		m = socNameRe.FindStringSubmatch(name)
	}
	if m == nil {
		return 0
	}

	n, _ := strconv.Atoi(m[1])
	return min(max(n, 0), 100)
}
