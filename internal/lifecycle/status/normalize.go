// Package status maps heterogeneous backend status strings onto canonical
// lifecycle states and reconciles overlapping status sources of a record.
package status

import (
	"strings"

	"github.com/BearBump/LoanBox/internal/models"
)

// deliveryAliases is shared by every domain: a unified delivery status may
// be written into borrow and return records as well.
var deliveryAliases = map[string]models.StatusCode{
	"pending":            models.StatusPending,
	"pending_assignment": models.StatusPending,
	"waiting":            models.StatusPending,
	"new":                models.StatusPending,
	"assigned":           models.StatusAssigned,
	"pending_delivery":   models.StatusAssigned,
	"accepted":           models.StatusAccepted,
	"confirmed":          models.StatusAccepted,
	"in_delivery":        models.StatusInDelivery,
	"out_for_delivery":   models.StatusInDelivery,
	"delivering":         models.StatusInDelivery,
	"in_transit":         models.StatusInDelivery,
	"on_the_way":         models.StatusInDelivery,
	"delivered":          models.StatusDelivered,
	"cancelled":          models.StatusCancelled,
	"canceled":           models.StatusCancelled,
	"failed":             models.StatusFailed,
	"delivery_failed":    models.StatusFailed,
	"failure":            models.StatusFailed,
}

// A finished delivery leg is "delivered"; a finished borrow or return is
// "completed".
var dispatchAliases = map[string]models.StatusCode{
	"completed":            models.StatusDelivered,
	"complete":             models.StatusDelivered,
	"done":                 models.StatusDelivered,
	"picked_up":            models.StatusInDelivery,
	"in_return":            models.StatusInDelivery,
	"returning":            models.StatusInDelivery,
	"returning_to_library": models.StatusInDelivery,
}

var borrowAliases = map[string]models.StatusCode{
	"approved":         models.StatusApproved,
	"rejected":         models.StatusRejected,
	"declined":         models.StatusRejected,
	"active":           models.StatusActive,
	"borrowed":         models.StatusActive,
	"late":             models.StatusActive,
	"overdue":          models.StatusActive,
	"return_requested": models.StatusReturnRequested,
	"pending_return":   models.StatusReturnRequested,
	"returned":         models.StatusCompleted,
	"completed":        models.StatusCompleted,
	"complete":         models.StatusCompleted,
}

var returnAliases = map[string]models.StatusCode{
	"approved":             models.StatusApproved,
	"rejected":             models.StatusRejected,
	"in_progress":          models.StatusInProgress,
	"inprogress":           models.StatusInProgress,
	"in_return":            models.StatusInProgress,
	"returning":            models.StatusInProgress,
	"returning_to_library": models.StatusInProgress,
	"picked_up":            models.StatusInProgress,
	"returned":             models.StatusCompleted,
	"completed":            models.StatusCompleted,
	"complete":             models.StatusCompleted,
}

var tables = map[models.Domain]map[string]models.StatusCode{
	models.DomainBorrow:   merge(deliveryAliases, borrowAliases),
	models.DomainReturn:   merge(deliveryAliases, returnAliases),
	models.DomainDelivery: merge(deliveryAliases, dispatchAliases),
}

func merge(base, over map[string]models.StatusCode) map[string]models.StatusCode {
	out := make(map[string]models.StatusCode, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Fold case-folds raw text and collapses spaces and dashes to underscores.
// An empty result means the status is absent.
func Fold(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// Lookup resolves raw text in the domain's alias table. ok is false when the
// text is blank.
func Lookup(domain models.Domain, raw string) (st models.Status, ok bool) {
	key := Fold(raw)
	if key == "" {
		return models.Status{}, false
	}
	table, found := tables[domain]
	if !found {
		table = tables[models.DomainDelivery]
	}
	if code, hit := table[key]; hit {
		return models.Known(code), true
	}
	return models.Unknown(raw), true
}

// Normalize never fails: blank input is pending, unrecognized input is
// Unknown with the raw text preserved.
func Normalize(domain models.Domain, raw string) models.Status {
	st, ok := Lookup(domain, raw)
	if !ok {
		return models.Known(models.StatusPending)
	}
	return st
}

var fineAliases = map[string]models.FineStatus{
	"unpaid":               models.FineUnpaid,
	"pending":              models.FineUnpaid,
	"outstanding":          models.FineUnpaid,
	"due":                  models.FineUnpaid,
	"pending_cash_payment": models.FinePendingCashPayment,
	"pending_cash":         models.FinePendingCashPayment,
	"cash_pending":         models.FinePendingCashPayment,
	"awaiting_cash":        models.FinePendingCashPayment,
	"paid":                 models.FinePaid,
	"completed":            models.FinePaid,
	"success":              models.FinePaid,
	"succeeded":            models.FinePaid,
	"settled":              models.FinePaid,
	"failed":               models.FineFailed,
	"declined":             models.FineFailed,
	"payment_failed":       models.FineFailed,
}

// FineStatus maps a payment-status string; anything unrecognized is unpaid.
func FineStatus(raw string) models.FineStatus {
	if st, ok := fineAliases[Fold(raw)]; ok {
		return st
	}
	return models.FineUnpaid
}

var methodAliases = map[string]models.PaymentMethod{
	"cash":             models.PaymentCash,
	"cash_on_delivery": models.PaymentCash,
	"cod":              models.PaymentCash,
	"card":             models.PaymentCard,
	"credit_card":      models.PaymentCard,
	"debit_card":       models.PaymentCard,
	"mastercard":       models.PaymentCard,
	"visa":             models.PaymentCard,
	"online":           models.PaymentCard,
}

func PaymentMethod(raw string) models.PaymentMethod {
	return methodAliases[Fold(raw)]
}
