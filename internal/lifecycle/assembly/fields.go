package assembly

// Each logical field is resolved from an ordered list of historical
// backend names; the first present value wins.
type fields []string

var (
	fieldID       = fields{"id", "pk", "uuid"}
	fieldStatus   = fields{"status", "state"}
	fieldUnified  = fields{"delivery_request_status", "unified_delivery_status"}
	fieldNotes    = fields{"description", "notes", "note", "message"}
	fieldFine     = fields{"fine", "fine_details", "penalty"}
	fieldFineAmt  = fields{"fine_amount", "amount", "total_amount"}
	fieldPenalty  = fields{"penalty_amount", "late_fee"}
	fieldPayState = fields{"payment_status", "fine_status", "status"}
	fieldPayMeth  = fields{"payment_method", "method"}
	fieldDaysLate = fields{"days_late", "overdue_days", "late_days"}
	fieldCreated  = fields{"created_at", "issued_at", "date"}
	fieldPaidAt   = fields{"paid_at", "payment_date"}
)

var (
	borrowID        = fields{"id", "borrow_id", "request_id"}
	borrowBook      = fields{"book_id", "book", "bookId"}
	borrowCustomer  = fields{"customer_id", "customer", "user_id", "user"}
	borrowDuration  = fields{"borrow_period_days", "duration_days", "duration", "borrow_duration"}
	borrowSecondary = fields{"borrow_status"}
	borrowRequested = fields{"request_date", "requested_at", "created_at"}
	borrowApproved  = fields{"approved_date", "approved_at", "approval_date"}
	borrowDue       = fields{"expected_return_date", "due_date", "return_due_date"}
	borrowReturned  = fields{"actual_return_date", "returned_at", "return_date"}
	borrowFineState = fields{"fine_status"}
	borrowDelivery  = fields{"delivery_request", "delivery", "delivery_assignment"}
)

var (
	returnID         = fields{"id", "return_id", "return_request_id"}
	returnBorrowRef  = fields{"borrowing_id", "borrow_request_id", "borrow_id", "borrowing", "borrow_request"}
	returnOwner      = fields{"borrowing", "borrow_request", "return_request"}
	returnOverdue    = fields{"overdue_days", "days_overdue"}
	returnHasPenalty = fields{"has_penalty", "is_late"}
	returnDue        = fields{"due_date", "expected_return_date"}
	returnCreated    = fields{"created_at", "request_date", "requested_at"}
	returnAccepted   = fields{"accepted_at", "approved_at"}
	returnPickedUp   = fields{"picked_up_at", "pickup_date"}
	returnCompleted  = fields{"completed_at", "returned_at", "actual_return_date"}
)

var (
	deliveryID        = fields{"id", "delivery_id", "assignment_id"}
	deliveryAgent     = fields{"delivery_manager_id", "delivery_manager", "agent_id", "assigned_to"}
	deliveryScheduled = fields{"scheduled_date", "scheduled_at", "scheduled_delivery_date"}
	deliveryDelivered = fields{"delivered_date", "delivered_at"}
	deliveryLat       = fields{"latitude", "current_latitude", "lat"}
	deliveryLng       = fields{"longitude", "current_longitude", "lng", "lon"}
	deliveryLastLat   = fields{"last_latitude", "last_known_latitude"}
	deliveryLastLng   = fields{"last_longitude", "last_known_longitude"}
	deliveryLocAt     = fields{"location_updated_at", "last_location_update"}
	deliveryTracking  = fields{"tracking_number", "tracking_code"}
	deliveryFailure   = fields{"failure_reason", "failed_reason", "failure_note"}
	deliveryRetry     = fields{"retry_count", "retries", "attempts"}
	deliveryETA       = fields{"eta", "estimated_delivery_time", "estimated_arrival"}
	deliveryHistory   = fields{"status_history", "history", "status_logs"}
	historyStatus     = fields{"status", "new_status", "to_status"}
	historyTime       = fields{"date", "timestamp", "created_at", "changed_at"}
)
