// Package lifecycle turns raw backend payloads into canonical lifecycle
// state and the derived view shown to users.
package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/LoanBox/internal/lifecycle/assembly"
	"github.com/BearBump/LoanBox/internal/lifecycle/delivery"
	"github.com/BearBump/LoanBox/internal/lifecycle/fines"
	"github.com/BearBump/LoanBox/internal/lifecycle/status"
	"github.com/BearBump/LoanBox/internal/lifecycle/temporal"
	"github.com/BearBump/LoanBox/internal/models"
)

var ErrUnknownKind = errors.New("unknown record kind")

// Snapshot is an assembled and reconciled record. It does not depend on
// the evaluation time and can be cached by payload hash.
type Snapshot struct {
	Kind     models.Kind                `json:"kind"`
	Borrow   *models.BorrowRecord       `json:"borrow,omitempty"`
	Return   *models.ReturnRecord       `json:"return,omitempty"`
	Delivery *models.DeliveryAssignment `json:"delivery,omitempty"`
}

// Status is the canonical status of the snapshot's record.
func (s Snapshot) Status() models.Status {
	switch {
	case s.Borrow != nil:
		return s.Borrow.Status
	case s.Return != nil:
		return s.Return.Status
	case s.Delivery != nil:
		return s.Delivery.Status
	}
	return models.Known(models.StatusPending)
}

// RawStatus is the backend text the canonical status was derived from.
func (s Snapshot) RawStatus() string {
	switch {
	case s.Borrow != nil:
		if s.Borrow.RawUnifiedStatus != "" {
			return s.Borrow.RawUnifiedStatus
		}
		return s.Borrow.RawStatus
	case s.Return != nil:
		if s.Return.RawUnifiedStatus != "" {
			return s.Return.RawUnifiedStatus
		}
		return s.Return.RawStatus
	case s.Delivery != nil:
		if n := len(s.Delivery.History); n > 0 {
			return s.Delivery.History[n-1].Status
		}
		return s.Delivery.Seed.RawStatus
	}
	return ""
}

// DueAt is the date the record is measured against for overdue state.
func (s Snapshot) DueAt() *time.Time {
	switch {
	case s.Borrow != nil:
		return s.Borrow.DueAt
	case s.Return != nil:
		return s.Return.DueAt
	case s.Delivery != nil:
		return s.Delivery.ScheduledAt
	}
	return nil
}

// CompletedAt is when the record finished: the return date of a borrow,
// the completion date of a return or the delivery time of an assignment.
func (s Snapshot) CompletedAt() *time.Time {
	switch {
	case s.Borrow != nil:
		return s.Borrow.ReturnedAt
	case s.Return != nil:
		return s.Return.CompletedAt
	case s.Delivery != nil:
		return s.Delivery.DeliveredAt
	}
	return nil
}

// History is the delivery status log attached to the record, if any.
func (s Snapshot) History() []models.StatusEntry {
	switch {
	case s.Delivery != nil:
		return s.Delivery.History
	case s.Borrow != nil && s.Borrow.Delivery != nil:
		return s.Borrow.Delivery.History
	}
	return nil
}

type Engine struct {
	Now      func() time.Time
	Observer assembly.Observer
}

func NewEngine(observer assembly.Observer) *Engine {
	return &Engine{Now: time.Now, Observer: observer}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Engine) Snapshot(kind models.Kind, p assembly.Payload) (Snapshot, error) {
	a := assembly.New(e.now(), e.Observer)
	switch kind {
	case models.KindBorrow:
		b := a.Borrow(p)
		return Snapshot{Kind: kind, Borrow: &b}, nil
	case models.KindReturn:
		r := a.Return(p)
		return Snapshot{Kind: kind, Return: &r}, nil
	case models.KindDelivery:
		d := a.Delivery(p)
		return Snapshot{Kind: kind, Delivery: &d}, nil
	}
	return Snapshot{}, errors.Wrap(ErrUnknownKind, string(kind))
}

// View derives the time-dependent state of s at now.
func (e *Engine) View(s Snapshot, now time.Time) models.View {
	now = now.UTC()
	var v models.View
	switch {
	case s.Borrow != nil:
		b := s.Borrow
		v = base(s.Kind, b.ID, b.Status, b.SecondaryStatus)
		applyTemporal(&v, temporal.Derive(b.Status, b.DueAt, b.ReturnedAt, now))
		v.Fine = summary(b.Fine)
		if b.Delivery != nil {
			// The reconciled borrow status gates the embedded assignment.
			d := *b.Delivery
			d.Status = b.Status
			applyDelivery(&v, d)
		}
	case s.Return != nil:
		r := s.Return
		v = base(s.Kind, r.ID, r.Status, r.SecondaryStatus)
		applyTemporal(&v, temporal.Derive(r.Status, r.DueAt, r.CompletedAt, now))
		v.Fine = summary(r.Fine)
	case s.Delivery != nil:
		d := s.Delivery
		v = base(s.Kind, d.ID, d.Status, d.Status)
		applyTemporal(&v, temporal.Derive(d.Status, d.ScheduledAt, d.DeliveredAt, now))
		applyDelivery(&v, *d)
	default:
		v = base(s.Kind, "", s.Status(), s.Status())
	}
	v.DerivedAt = now
	return v
}

// Derive decodes raw and returns both the snapshot and its view at the
// engine's current time.
func (e *Engine) Derive(kind models.Kind, raw []byte) (Snapshot, models.View, error) {
	p, err := assembly.Decode(raw)
	if err != nil {
		return Snapshot{}, models.View{}, err
	}
	s, err := e.Snapshot(kind, p)
	if err != nil {
		return Snapshot{}, models.View{}, err
	}
	return s, e.View(s, e.now()), nil
}

// ContentHash is the hex SHA-256 of a raw payload.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func SlogObserver(log *slog.Logger) assembly.Observer {
	return func(d assembly.Diagnostic) {
		log.Warn("payload field recovered",
			"entity", d.Entity,
			"field", d.Field,
			"raw", d.Raw,
			"reason", d.Reason,
		)
	}
}

func base(kind models.Kind, id string, primary, secondary models.Status) models.View {
	return models.View{
		Kind:            kind,
		ID:              id,
		Status:          primary.String(),
		Label:           status.Label(primary),
		SecondaryStatus: secondary.String(),
	}
}

func applyTemporal(v *models.View, t temporal.Temporal) {
	v.IsOverdue = t.IsOverdue
	v.DaysRemaining = t.DaysRemaining
	v.DaysOverdue = t.DaysOverdue
}

func applyDelivery(v *models.View, d models.DeliveryAssignment) {
	tr := delivery.Tracking(d)
	v.Tracking = &tr
	v.RetryCount = d.RetryCount
	v.FailureReason = d.FailureReason
	v.TrackingNumber = d.TrackingNumber
}

func summary(f *models.FineRecord) *models.FineSummary {
	if f == nil {
		return nil
	}
	s := fines.Summarize(*f)
	return &s
}
