// Package temporal derives overdue state and day counts from due dates.
package temporal

import (
	"math"
	"time"

	"github.com/BearBump/LoanBox/internal/models"
)

const day = 24 * time.Hour

type Temporal struct {
	IsOverdue     bool
	DaysRemaining *int
	DaysOverdue   *int
}

// Derive is total: a nil due date means no temporal constraint. Terminal
// statuses and records with a completion time are never overdue and carry
// no overdue day count.
func Derive(st models.Status, due, completedAt *time.Time, now time.Time) Temporal {
	if due == nil || due.IsZero() {
		return Temporal{}
	}

	diff := due.Sub(now)
	remaining := int(math.Ceil(float64(diff) / float64(day)))
	overdue := int(math.Floor(float64(-diff) / float64(day)))
	if overdue < 0 {
		overdue = 0
	}

	out := Temporal{
		DaysRemaining: &remaining,
		DaysOverdue:   &overdue,
	}
	if st.IsTerminal() || completedAt != nil {
		out.DaysOverdue = nil
		return out
	}
	out.IsOverdue = now.After(*due)
	return out
}
