package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FineSummary struct {
	Amount decimal.Decimal `json:"amount"`
	Status FineStatus      `json:"status"`
	IsPaid bool            `json:"is_paid"`
}

type TrackingView struct {
	CanTrack  bool       `json:"can_track"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	ETA       *time.Time `json:"eta,omitempty"`
}

// View is the derived state handed to the presentation layer.
type View struct {
	Kind            Kind   `json:"kind"`
	ID              string `json:"id"`
	Status          string `json:"status"`
	Label           string `json:"label"`
	SecondaryStatus string `json:"secondary_status"`

	IsOverdue     bool `json:"is_overdue"`
	DaysRemaining *int `json:"days_remaining,omitempty"`
	DaysOverdue   *int `json:"days_overdue,omitempty"`

	Fine     *FineSummary  `json:"fine,omitempty"`
	Tracking *TrackingView `json:"tracking,omitempty"`

	RetryCount     int    `json:"retry_count,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`

	DerivedAt time.Time `json:"derived_at"`
}
