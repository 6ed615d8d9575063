package fake

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/LoanBox/internal/integrations/backend"
	"github.com/BearBump/LoanBox/internal/models"
)

// FakeClient serves deterministic payloads derived from (kind, id), in the
// shapes the real backend uses. It stands in for the backend in local runs.
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient { return &FakeClient{now: time.Now} }

func NewWithClock(now func() time.Time) *FakeClient { return &FakeClient{now: now} }

var (
	borrowStatuses   = []string{"pending", "approved", "active", "active", "returned", "rejected"}
	returnStatuses   = []string{"pending", "accepted", "in_return", "completed"}
	deliveryStatuses = []string{"assigned", "accepted", "out_for_delivery", "delivered", "failed"}
)

func (f *FakeClient) FetchRecord(ctx context.Context, kind models.Kind, externalID string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := backend.Resource(kind); !ok {
		return nil, errors.Errorf("unsupported kind %q", kind)
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(externalID))
	v := h.Sum32()

	now := f.now().UTC().Truncate(time.Second)
	requested := now.AddDate(0, 0, -int(v%20)-1)

	var body map[string]any
	switch kind {
	case models.KindBorrow:
		st := borrowStatuses[v%uint32(len(borrowStatuses))]
		body = map[string]any{
			"id":                 externalID,
			"book_id":            v % 1000,
			"customer_id":        v % 97,
			"status":             st,
			"request_date":       requested.Format(time.RFC3339),
			"borrow_period_days": 14,
		}
		if st != "pending" && st != "rejected" {
			body["approved_date"] = requested.Add(2 * time.Hour).Format(time.RFC3339)
		}
		if v%4 == 0 {
			body["fine_amount"] = float64(v%50) + 0.5
			body["fine_status"] = "unpaid"
		}
	case models.KindReturn:
		body = map[string]any{
			"id":           externalID,
			"borrowing_id": v % 1000,
			"status":       returnStatuses[v%uint32(len(returnStatuses))],
			"created_at":   requested.Format(time.RFC3339),
			"due_date":     requested.AddDate(0, 0, 3).Format(time.RFC3339),
		}
		if v%3 == 0 {
			body["has_penalty"] = true
			body["penalty_amount"] = "15.00"
			body["overdue_days"] = v % 5
		}
	case models.KindDelivery:
		n := int(v%uint32(len(deliveryStatuses))) + 1
		history := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			history = append(history, map[string]any{
				"status": deliveryStatuses[i],
				"date":   requested.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			})
		}
		body = map[string]any{
			"id":                  externalID,
			"delivery_manager_id": v % 13,
			"scheduled_date":      requested.AddDate(0, 0, 1).Format(time.RFC3339),
			"status_history":      history,
			"latitude":            55.75 + float64(v%100)/1000,
			"longitude":           37.61 + float64(v%100)/1000,
			"tracking_number":     "LB" + externalID,
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode fake payload")
	}
	return raw, nil
}
