package models

import "errors"

// ErrNoOp matches every *NoOpError via errors.Is.
var ErrNoOp = errors.New("no-op")

var ErrRecordNotFound = errors.New("record not found")

type ReasonCode string

const (
	ReasonFineTerminal       ReasonCode = "fine_terminal"
	ReasonIllegalTransition  ReasonCode = "illegal_transition"
	ReasonMethodMismatch     ReasonCode = "method_mismatch"
	ReasonAssignmentTerminal ReasonCode = "assignment_terminal"
	ReasonDuplicateEntry     ReasonCode = "duplicate_entry"
)

// NoOpError reports an operation that was refused and left its input
// unchanged. It is a handled outcome, not a fault.
type NoOpError struct {
	Reason ReasonCode
	Detail string
}

func (e *NoOpError) Error() string {
	if e.Detail == "" {
		return "no-op: " + string(e.Reason)
	}
	return "no-op: " + string(e.Reason) + ": " + e.Detail
}

func (e *NoOpError) Is(target error) bool { return target == ErrNoOp }

// NoOpReason extracts the reason code, if err is a *NoOpError.
func NoOpReason(err error) (ReasonCode, bool) {
	var e *NoOpError
	if errors.As(err, &e) {
		return e.Reason, true
	}
	return "", false
}
