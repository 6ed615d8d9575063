package status

import "github.com/BearBump/LoanBox/internal/models"

// Sources are the overlapping status fields a record may carry.
type Sources struct {
	// Unified is the delivery subsystem's status; it wins over everything.
	Unified   string
	Primary   string
	Secondary string
}

type Reconciled struct {
	Primary   models.Status
	Secondary models.Status
}

// Reconcile applies the precedence unified > primary > pending. Secondary
// mirrors the unified status when present, otherwise the record's own
// secondary field, otherwise the primary result.
func Reconcile(domain models.Domain, src Sources) Reconciled {
	if st, ok := Lookup(domain, src.Unified); ok {
		return Reconciled{Primary: st, Secondary: st}
	}

	primary := Normalize(domain, src.Primary)
	secondary, ok := Lookup(domain, src.Secondary)
	if !ok {
		secondary = primary
	}
	return Reconciled{Primary: primary, Secondary: secondary}
}
