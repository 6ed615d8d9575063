package models

import (
	"encoding/json"
	"time"
)

// Record is a backend entity registered for periodic re-derivation.
type Record struct {
	ID             uint64
	Kind           Kind
	ExternalID     string
	Payload        json.RawMessage
	PayloadHash    string
	Status         string
	StatusRaw      string
	View           *View
	DueAt          *time.Time
	CompletedAt    *time.Time
	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StatusEvent is one persisted status-history entry of a record.
type StatusEvent struct {
	ID          uint64
	RecordID    uint64
	Status      string
	StatusRaw   string
	EventTime   time.Time
	Description *string
	OutOfOrder  bool
	CreatedAt   time.Time
}

type RecordCreateInput struct {
	Kind       Kind
	ExternalID string
}

type RecordFilter struct {
	Kind     Kind
	Statuses []string
	Overdue  *bool
	Limit    int
	Offset   int
}
