package messages

import (
	"encoding/json"
	"time"

	"github.com/BearBump/LoanBox/internal/models"
)

// RecordRefreshed is published by the worker after each backend fetch.
// On failure only Error and the schedule fields are set.
type RecordRefreshed struct {
	RecordID  uint64      `json:"record_id"`
	Kind      models.Kind `json:"kind"`
	CheckedAt time.Time   `json:"checked_at"`

	Payload     json.RawMessage `json:"payload,omitempty"`
	PayloadHash string          `json:"payload_hash,omitempty"`

	Status    string       `json:"status,omitempty"`
	StatusRaw string       `json:"status_raw,omitempty"`
	View      *models.View `json:"view,omitempty"`

	Events []StatusEvent `json:"events,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Error *string `json:"error,omitempty"`
}

// StatusEvent is one delivery status log entry carried with the update.
type StatusEvent struct {
	Status      string    `json:"status"`
	StatusRaw   string    `json:"status_raw"`
	EventTime   time.Time `json:"event_time"`
	Description *string   `json:"description,omitempty"`
	OutOfOrder  bool      `json:"out_of_order,omitempty"`
}
