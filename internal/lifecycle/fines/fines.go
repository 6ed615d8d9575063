package fines

import (
	"time"

	"github.com/BearBump/LoanBox/internal/lifecycle/status"
	"github.com/BearBump/LoanBox/internal/models"
)

// Sources are the places a fine may be described in a backend payload.
// Amount candidates are listed by priority: the nested fine object, the
// owning borrow/return, the envelope, then a generic penalty field.
type Sources struct {
	ID            string
	OwnerRecordID string

	NestedAmount   any
	OwnerAmount    any
	EnvelopeAmount any
	PenaltyAmount  any

	PaymentStatus string
	PaymentMethod string
	DaysLate      int
	CreatedAt     time.Time
	PaidAt        *time.Time
}

func Resolve(src Sources) models.FineRecord {
	days := src.DaysLate
	if days < 0 {
		days = 0
	}
	f := models.FineRecord{
		ID:            src.ID,
		OwnerRecordID: src.OwnerRecordID,
		Amount:        ResolveAmount(src.NestedAmount, src.OwnerAmount, src.EnvelopeAmount, src.PenaltyAmount),
		Status:        status.FineStatus(src.PaymentStatus),
		PaymentMethod: status.PaymentMethod(src.PaymentMethod),
		DaysLate:      days,
		CreatedAt:     src.CreatedAt,
	}
	if f.Status == models.FinePaid {
		f.PaidAt = src.PaidAt
	}
	return f
}

// Transition moves a fine along its payment state machine:
//
//	unpaid -> pending_cash_payment -> paid   (cash)
//	unpaid -> paid | failed                  (card)
//
// Anything else leaves the fine unchanged and returns a *models.NoOpError.
func Transition(f models.FineRecord, to models.FineStatus, method models.PaymentMethod, at time.Time) (models.FineRecord, error) {
	if f.Status.IsTerminal() {
		return f, &models.NoOpError{Reason: models.ReasonFineTerminal, Detail: string(f.Status)}
	}

	switch {
	case f.Status == models.FineUnpaid && to == models.FinePendingCashPayment:
		if method != models.PaymentCash {
			return f, mismatch(method, to)
		}
	case f.Status == models.FinePendingCashPayment && to == models.FinePaid:
		if method == "" {
			method = models.PaymentCash
		}
		if method != models.PaymentCash {
			return f, mismatch(method, to)
		}
	case f.Status == models.FineUnpaid && (to == models.FinePaid || to == models.FineFailed):
		if method != models.PaymentCard {
			return f, mismatch(method, to)
		}
	default:
		return f, &models.NoOpError{
			Reason: models.ReasonIllegalTransition,
			Detail: string(f.Status) + " -> " + string(to),
		}
	}

	out := f
	out.Status = to
	out.PaymentMethod = method
	if to == models.FinePaid {
		paid := at
		out.PaidAt = &paid
	}
	return out, nil
}

func mismatch(method models.PaymentMethod, to models.FineStatus) error {
	m := string(method)
	if m == "" {
		m = "none"
	}
	return &models.NoOpError{Reason: models.ReasonMethodMismatch, Detail: m + " cannot reach " + string(to)}
}

func Summarize(f models.FineRecord) models.FineSummary {
	return models.FineSummary{
		Amount: f.Amount,
		Status: f.Status,
		IsPaid: f.Status == models.FinePaid,
	}
}
