package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBorrow   Kind = "borrow"
	KindReturn   Kind = "return"
	KindDelivery Kind = "delivery"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBorrow, KindReturn, KindDelivery:
		return true
	}
	return false
}

// BorrowRecord is one customer's borrow of one book.
type BorrowRecord struct {
	ID           string
	BookID       string
	CustomerID   string
	DurationDays int
	RequestedAt  time.Time
	ApprovedAt   *time.Time
	DueAt        *time.Time
	ReturnedAt   *time.Time

	RawStatus          string
	RawSecondaryStatus string
	// RawUnifiedStatus is delivery_request_status; authoritative when set.
	RawUnifiedStatus string

	Delivery *DeliveryAssignment
	Fine     *FineRecord

	Status          Status
	SecondaryStatus Status
}

// ReturnRecord is the return trip of a previously borrowed book.
type ReturnRecord struct {
	ID               string
	BorrowRecordID   string
	RawStatus        string
	RawUnifiedStatus string
	HasPenalty       bool
	OverdueDays      *int
	DueAt            *time.Time
	RequestedAt      time.Time
	AcceptedAt       *time.Time
	PickedUpAt       *time.Time
	CompletedAt      *time.Time

	Fine *FineRecord

	Status          Status
	SecondaryStatus Status
}

type StatusEntry struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
	// OutOfOrder is set when the entry is older than its predecessor.
	OutOfOrder bool `json:"out_of_order,omitempty"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DeliverySeed is the state reported by the backend before the first
// entry of the status log.
type DeliverySeed struct {
	RawStatus   string
	RetryCount  int
	DeliveredAt *time.Time
}

// DeliveryAssignment is the dispatch view of an order or a borrow/return
// trip. Status, RetryCount and DeliveredAt are derived from Seed and
// History; they are never mutated independently.
type DeliveryAssignment struct {
	ID                string
	AssignedAgentID   string
	ScheduledAt       *time.Time
	Live              *Coordinates
	LastKnown         *Coordinates
	LocationUpdatedAt *time.Time
	TrackingNumber    string
	FailureReason     string
	ETA               *time.Time

	Seed    DeliverySeed
	History []StatusEntry

	Status      Status
	RetryCount  int
	DeliveredAt *time.Time
}

type FineStatus string

const (
	FineUnpaid             FineStatus = "unpaid"
	FinePendingCashPayment FineStatus = "pending_cash_payment"
	FinePaid               FineStatus = "paid"
	FineFailed             FineStatus = "failed"
)

func (s FineStatus) IsTerminal() bool { return s == FinePaid || s == FineFailed }

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

type FineRecord struct {
	ID            string          `json:"id,omitempty"`
	OwnerRecordID string          `json:"owner_record_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        FineStatus      `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	DaysLate      int             `json:"days_late"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}
