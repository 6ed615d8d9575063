package models

// Domain identifies which backend subsystem a status string came from.
type Domain string

const (
	DomainBorrow   Domain = "borrow"
	DomainReturn   Domain = "return"
	DomainDelivery Domain = "delivery"
	DomainFine     Domain = "fine"
)

// StatusCode is the closed set of canonical lifecycle states.
type StatusCode string

const (
	StatusPending         StatusCode = "pending"
	StatusApproved        StatusCode = "approved"
	StatusRejected        StatusCode = "rejected"
	StatusAssigned        StatusCode = "assigned"
	StatusAccepted        StatusCode = "accepted"
	StatusInDelivery      StatusCode = "in_delivery"
	StatusDelivered       StatusCode = "delivered"
	StatusActive          StatusCode = "active"
	StatusReturnRequested StatusCode = "return_requested"
	StatusInProgress      StatusCode = "in_progress"
	StatusCompleted       StatusCode = "completed"
	StatusCancelled       StatusCode = "cancelled"
	StatusFailed          StatusCode = "failed"
	StatusUnknown         StatusCode = "unknown"
)

// Status is a canonical status. Raw is only meaningful for StatusUnknown,
// where it carries the unrecognized backend text verbatim.
type Status struct {
	Code StatusCode `json:"code"`
	Raw  string     `json:"raw,omitempty"`
}

func Known(code StatusCode) Status { return Status{Code: code} }

func Unknown(raw string) Status { return Status{Code: StatusUnknown, Raw: raw} }

func (s Status) Is(code StatusCode) bool { return s.Code == code }

func (s Status) IsUnknown() bool { return s.Code == StatusUnknown }

// String returns the wire form: the canonical code, or the raw text for
// unknown statuses.
func (s Status) String() string {
	if s.Code == StatusUnknown && s.Raw != "" {
		return s.Raw
	}
	return string(s.Code)
}

// IsTerminal reports whether no further lifecycle progress is expected.
func (s Status) IsTerminal() bool {
	switch s.Code {
	case StatusDelivered, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

func (s Status) IsFailure() bool { return s.Code == StatusFailed }
