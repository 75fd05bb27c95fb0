package ingest

import (
	"errors"
	"fmt"
)

// FaultKind tells apart the two classes of protocol faults.
type FaultKind string

const (
	// FaultValidation is raised for bad client input: invalid metadata or
	// sample fields, or an unknown session.
	FaultValidation FaultKind = "validation"

	// FaultDataFormat is raised when the server could not persist or
	// allocate what the client asked for.
	FaultDataFormat FaultKind = "data_format"
)

// Fault is a protocol fault. Business rejections of a sample are not faults;
// they are reported as an Ack with Ok set to false.
type Fault struct {
	Kind   FaultKind `json:"kind"`
	Reason string    `json:"reason"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Reason)
}

// AsFault returns the Fault in err's chain, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsFaultKind reports whether err carries a Fault of the given kind.
func IsFaultKind(err error, kind FaultKind) bool {
	f, ok := AsFault(err)
	return ok && f.Kind == kind
}
