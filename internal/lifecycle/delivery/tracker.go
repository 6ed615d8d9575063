// Package delivery folds a delivery assignment's status log into its
// current status, retry count and delivery time, and gates location data.
package delivery

import (
	"sort"
	"time"

	"github.com/BearBump/LoanBox/internal/lifecycle/status"
	"github.com/BearBump/LoanBox/internal/models"
)

// Replay recomputes the derived fields of a from its seed and log. The log
// is walked in timestamp order; entries with equal timestamps keep their
// stored order. Entries after a terminal status do not change the result.
// a.History itself is left as stored.
func Replay(a models.DeliveryAssignment) models.DeliveryAssignment {
	var (
		prev    models.Status
		hasPrev bool
	)
	if st, ok := status.Lookup(models.DomainDelivery, a.Seed.RawStatus); ok {
		prev, hasPrev = st, true
	}
	retries := a.Seed.RetryCount
	if retries < 0 {
		retries = 0
	}
	deliveredAt := a.Seed.DeliveredAt

	for _, e := range chronological(a.History) {
		if hasPrev && prev.IsTerminal() {
			break
		}
		st := status.Normalize(models.DomainDelivery, e.Status)
		if st.IsFailure() && !(hasPrev && prev.IsFailure()) {
			retries++
		}
		if st.Is(models.StatusDelivered) && deliveredAt == nil {
			ts := e.Timestamp
			deliveredAt = &ts
		}
		prev, hasPrev = st, true
	}

	if !hasPrev {
		prev = models.Known(models.StatusPending)
	}
	a.Status = prev
	a.RetryCount = retries
	a.DeliveredAt = deliveredAt
	return a
}

func chronological(history []models.StatusEntry) []models.StatusEntry {
	out := make([]models.StatusEntry, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// AppendStatusChange records a status update reported by the backend.
// Older-than-last entries are kept and flagged OutOfOrder. Exact replays and
// changes after a terminal status leave a unchanged and return a
// *models.NoOpError.
func AppendStatusChange(a models.DeliveryAssignment, raw string, ts time.Time, description string) (models.DeliveryAssignment, error) {
	cur := Replay(a)
	next := status.Normalize(models.DomainDelivery, raw)

	for _, e := range cur.History {
		if e.Timestamp.Equal(ts) && e.Description == description && status.Fold(e.Status) == status.Fold(raw) {
			return cur, &models.NoOpError{Reason: models.ReasonDuplicateEntry, Detail: raw}
		}
	}
	if cur.Status.IsTerminal() && next != cur.Status {
		return cur, &models.NoOpError{
			Reason: models.ReasonAssignmentTerminal,
			Detail: cur.Status.String() + " -> " + next.String(),
		}
	}

	entry := models.StatusEntry{Status: raw, Timestamp: ts, Description: description}
	if n := len(cur.History); n > 0 && ts.Before(cur.History[n-1].Timestamp) {
		entry.OutOfOrder = true
	}

	history := make([]models.StatusEntry, len(cur.History), len(cur.History)+1)
	copy(history, cur.History)
	cur.History = append(history, entry)
	return Replay(cur), nil
}

func hasCoordinates(a models.DeliveryAssignment) bool {
	return a.Live != nil || a.LastKnown != nil
}

// CanTrackLocation is true only while the assignment is out for delivery.
// Coordinates present before dispatch or after completion are not exposed.
func CanTrackLocation(a models.DeliveryAssignment) bool {
	return a.Status.Is(models.StatusInDelivery) && hasCoordinates(a)
}

// Location returns the coordinates to show, preferring the live pair.
func Location(a models.DeliveryAssignment) (models.Coordinates, bool) {
	if !CanTrackLocation(a) {
		return models.Coordinates{}, false
	}
	if a.Live != nil {
		return *a.Live, true
	}
	return *a.LastKnown, true
}

func Tracking(a models.DeliveryAssignment) models.TrackingView {
	c, ok := Location(a)
	if !ok {
		return models.TrackingView{}
	}
	lat, lng := c.Latitude, c.Longitude
	return models.TrackingView{
		CanTrack:  true,
		Latitude:  &lat,
		Longitude: &lng,
		ETA:       a.ETA,
	}
}
