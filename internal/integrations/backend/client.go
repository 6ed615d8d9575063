// Package backend fetches raw lifecycle records from the library backend.
package backend

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/BearBump/LoanBox/internal/models"
)

var (
	ErrNotFound    = errors.New("backend record not found")
	ErrRateLimited = errors.New("backend rate limit")
)

// Client returns the raw JSON object of one record, with any response
// envelope already removed.
type Client interface {
	FetchRecord(ctx context.Context, kind models.Kind, externalID string) (json.RawMessage, error)
}

// Resource is the REST collection that serves records of kind.
func Resource(kind models.Kind) (string, bool) {
	switch kind {
	case models.KindBorrow:
		return "borrow-requests", true
	case models.KindReturn:
		return "return-requests", true
	case models.KindDelivery:
		return "delivery-assignments", true
	}
	return "", false
}
