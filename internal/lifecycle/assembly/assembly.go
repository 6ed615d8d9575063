// Package assembly builds lifecycle entities from raw backend payloads. It
// is the only place that knows about backend field names.
package assembly

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/BearBump/LoanBox/internal/lifecycle/delivery"
	"github.com/BearBump/LoanBox/internal/lifecycle/fines"
	"github.com/BearBump/LoanBox/internal/lifecycle/status"
	"github.com/BearBump/LoanBox/internal/models"
)

// Diagnostic describes malformed input that was recovered with a default.
type Diagnostic struct {
	Entity string
	Field  string
	Raw    string
	Reason string
}

type Observer func(Diagnostic)

type Assembler struct {
	now     time.Time
	observe Observer
}

// New returns an assembler. now is used only as a display fallback for
// missing creation dates. observe may be nil.
func New(now time.Time, observe Observer) *Assembler {
	return &Assembler{now: now, observe: observe}
}

func (a *Assembler) report(entity, field string, raw any, reason string) {
	if a.observe == nil {
		return
	}
	a.observe(Diagnostic{Entity: entity, Field: field, Raw: scalarString(raw), Reason: reason})
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	case json.Number, float64:
		if f, ok := toFloat(t); ok && f > 0 {
			return time.Unix(int64(f), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func (a *Assembler) date(entity string, p Payload, f fields) *time.Time {
	v, ok := p.first(f)
	if !ok {
		return nil
	}
	ts, ok := parseTime(v)
	if !ok {
		a.report(entity, f[0], v, "malformed date")
		return nil
	}
	return &ts
}

func (a *Assembler) dateOrNow(entity string, p Payload, f fields) time.Time {
	if ts := a.date(entity, p, f); ts != nil {
		return *ts
	}
	return a.now
}

func (a *Assembler) integer(entity string, p Payload, f fields) (int, bool) {
	v, ok := p.first(f)
	if !ok {
		return 0, false
	}
	n, ok := toInt(v)
	if !ok {
		a.report(entity, f[0], v, "malformed integer")
		return 0, false
	}
	return n, true
}

func (a *Assembler) coordinates(p Payload, lat, lng fields) *models.Coordinates {
	rawLat, okLat := p.first(lat)
	rawLng, okLng := p.first(lng)
	if !okLat && !okLng {
		return nil
	}
	la, ok1 := toFloat(rawLat)
	lo, ok2 := toFloat(rawLng)
	if !ok1 || !ok2 || la < -90 || la > 90 || lo < -180 || lo > 180 {
		a.report("delivery", lat[0], rawLat, "incomplete or invalid coordinate pair")
		return nil
	}
	return &models.Coordinates{Latitude: la, Longitude: lo}
}

// Borrow assembles a borrow record and reconciles its status. An embedded
// delivery sub-record counts as the unified status when the dedicated field
// is absent.
func (a *Assembler) Borrow(p Payload) models.BorrowRecord {
	const entity = "borrow"
	b := models.BorrowRecord{
		ID:                 p.str(borrowID),
		BookID:             p.str(borrowBook),
		CustomerID:         p.str(borrowCustomer),
		RequestedAt:        a.dateOrNow(entity, p, borrowRequested),
		ApprovedAt:         a.date(entity, p, borrowApproved),
		DueAt:              a.date(entity, p, borrowDue),
		ReturnedAt:         a.date(entity, p, borrowReturned),
		RawStatus:          p.str(fieldStatus),
		RawSecondaryStatus: p.str(borrowSecondary),
		RawUnifiedStatus:   p.str(fieldUnified),
	}
	if d, ok := a.integer(entity, p, borrowDuration); ok && d > 0 {
		b.DurationDays = d
	}

	switch {
	case b.DueAt == nil && b.ApprovedAt != nil && b.DurationDays > 0:
		due := b.RequestedAt.AddDate(0, 0, b.DurationDays)
		b.DueAt = &due
	case b.DueAt != nil && b.ApprovedAt == nil:
		a.report(entity, borrowApproved[0], nil, "due date without approval; approval backfilled from request date")
		approved := b.RequestedAt
		b.ApprovedAt = &approved
	}

	if obj := p.object(borrowDelivery); obj != nil {
		d := a.Delivery(obj)
		b.Delivery = &d
		if b.RawUnifiedStatus == "" {
			b.RawUnifiedStatus = obj.str(fieldStatus)
		}
	}

	rec := status.Reconcile(models.DomainBorrow, status.Sources{
		Unified:   b.RawUnifiedStatus,
		Primary:   b.RawStatus,
		Secondary: b.RawSecondaryStatus,
	})
	b.Status, b.SecondaryStatus = rec.Primary, rec.Secondary

	nested := p.object(fieldFine)
	envelopeAmount := envelopeFine(p)
	fineState := p.str(borrowFineState)
	if nested != nil || fines.Present(envelopeAmount) || fineState != "" {
		f := a.fine(nested, b.ID, nil, envelopeAmount, p.raw(fieldPenalty), fineState, b.RequestedAt, p)
		b.Fine = &f
	}
	return b
}

// Return assembles a return record and reconciles its status.
func (a *Assembler) Return(p Payload) models.ReturnRecord {
	const entity = "return"
	r := models.ReturnRecord{
		ID:               p.str(returnID),
		BorrowRecordID:   p.str(returnBorrowRef),
		RawStatus:        p.str(fieldStatus),
		RawUnifiedStatus: p.str(fieldUnified),
		HasPenalty:       toBool(p.raw(returnHasPenalty)),
		DueAt:            a.date(entity, p, returnDue),
		RequestedAt:      a.dateOrNow(entity, p, returnCreated),
		AcceptedAt:       a.date(entity, p, returnAccepted),
		PickedUpAt:       a.date(entity, p, returnPickedUp),
		CompletedAt:      a.date(entity, p, returnCompleted),
	}
	if n, ok := a.integer(entity, p, returnOverdue); ok {
		if n < 0 {
			n = 0
		}
		r.OverdueDays = &n
	}

	rec := status.Reconcile(models.DomainReturn, status.Sources{
		Unified: r.RawUnifiedStatus,
		Primary: r.RawStatus,
	})
	r.Status, r.SecondaryStatus = rec.Primary, rec.Secondary

	nested := p.object(fieldFine)
	var ownerAmount any
	if owner := p.object(returnOwner); owner != nil {
		ownerAmount = owner.raw(fields{"fine_amount"})
	}
	envelopeAmount := envelopeFine(p)
	penalty := p.raw(fieldPenalty)
	if nested != nil || r.HasPenalty || fines.Present(ownerAmount) || fines.Present(envelopeAmount) || fines.Present(penalty) {
		f := a.fine(nested, r.ID, ownerAmount, envelopeAmount, penalty, "", r.RequestedAt, p)
		if f.DaysLate == 0 && r.OverdueDays != nil {
			f.DaysLate = *r.OverdueDays
		}
		r.Fine = &f
	}
	return r
}

// envelopeFine is the record-level amount: fine_amount, or a fine field
// that holds a bare number instead of an object.
func envelopeFine(p Payload) any {
	if v, ok := p.first(fields{"fine_amount"}); ok {
		return v
	}
	if v, ok := p.first(fieldFine); ok {
		if _, isObj := v.(map[string]any); !isObj {
			return v
		}
	}
	return nil
}

func (a *Assembler) fine(nested Payload, ownerID string, ownerAmount, envelopeAmount, penalty any, envelopeState string, ownerCreated time.Time, envelope Payload) models.FineRecord {
	src := fines.Sources{
		OwnerRecordID:  ownerID,
		OwnerAmount:    ownerAmount,
		EnvelopeAmount: envelopeAmount,
		PenaltyAmount:  penalty,
		PaymentStatus:  envelopeState,
		CreatedAt:      ownerCreated,
	}
	if days, ok := a.integer("fine", envelope, fieldDaysLate); ok {
		src.DaysLate = days
	}
	if nested != nil {
		src.ID = nested.str(fieldID)
		src.NestedAmount = nested.raw(fieldFineAmt)
		if st := nested.str(fieldPayState); st != "" {
			src.PaymentStatus = st
		}
		src.PaymentMethod = nested.str(fieldPayMeth)
		if days, ok := a.integer("fine", nested, fieldDaysLate); ok {
			src.DaysLate = days
		}
		if created := a.date("fine", nested, fieldCreated); created != nil {
			src.CreatedAt = *created
		}
		src.PaidAt = a.date("fine", nested, fieldPaidAt)
	}
	return fines.Resolve(src)
}

// Fine assembles a standalone fine payload owned by ownerID.
func (a *Assembler) Fine(p Payload, ownerID string) models.FineRecord {
	return a.fine(p, ownerID, nil, nil, p.raw(fieldPenalty), "", a.now, p)
}

// Delivery assembles a delivery assignment and folds its status log. When
// the reported status is ahead of the log it is appended as the latest
// entry.
func (a *Assembler) Delivery(p Payload) models.DeliveryAssignment {
	const entity = "delivery"
	d := models.DeliveryAssignment{
		ID:                p.str(deliveryID),
		AssignedAgentID:   p.str(deliveryAgent),
		ScheduledAt:       a.date(entity, p, deliveryScheduled),
		Live:              a.coordinates(p, deliveryLat, deliveryLng),
		LastKnown:         a.coordinates(p, deliveryLastLat, deliveryLastLng),
		LocationUpdatedAt: a.date(entity, p, deliveryLocAt),
		TrackingNumber:    p.str(deliveryTracking),
		FailureReason:     p.str(deliveryFailure),
		ETA:               a.date(entity, p, deliveryETA),
	}
	reported := p.str(fieldStatus)
	d.History = a.history(p.list(deliveryHistory))

	seed := models.DeliverySeed{DeliveredAt: a.date(entity, p, deliveryDelivered)}
	if len(d.History) == 0 {
		seed.RawStatus = reported
		if n, ok := a.integer(entity, p, deliveryRetry); ok && n > 0 {
			seed.RetryCount = n
		}
	}
	d.Seed = seed
	d = delivery.Replay(d)

	if n := len(d.History); n > 0 && reported != "" {
		if status.Normalize(models.DomainDelivery, reported) != d.Status {
			if next, err := delivery.AppendStatusChange(d, reported, d.History[n-1].Timestamp, ""); err == nil {
				d = next
			}
		}
	}
	return d
}

func (a *Assembler) history(items []any) []models.StatusEntry {
	out := make([]models.StatusEntry, 0, len(items))
	var last time.Time
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			a.report("delivery", "status_history", it, "entry is not an object")
			continue
		}
		e := Payload(m)
		st := e.str(historyStatus)
		if st == "" {
			a.report("delivery", "status_history", nil, "entry without status")
			continue
		}
		ts := last
		if parsed := a.date("delivery", e, historyTime); parsed != nil {
			ts = *parsed
		} else if _, present := e.first(historyTime); !present {
			a.report("delivery", historyTime[0], nil, "entry without timestamp; previous timestamp used")
		}
		last = ts
		out = append(out, models.StatusEntry{Status: st, Timestamp: ts, Description: e.str(fieldNotes)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
