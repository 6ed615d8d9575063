package status

import "github.com/BearBump/LoanBox/internal/models"

var labels = map[models.StatusCode]string{
	models.StatusPending:         "Pending",
	models.StatusApproved:        "Approved",
	models.StatusRejected:        "Rejected",
	models.StatusAssigned:        "Assigned",
	models.StatusAccepted:        "Accepted",
	models.StatusInDelivery:      "In Delivery",
	models.StatusDelivered:       "Delivered",
	models.StatusActive:          "Borrowed",
	models.StatusReturnRequested: "Return Requested",
	models.StatusInProgress:      "Returning",
	models.StatusCompleted:       "Completed",
	models.StatusCancelled:       "Cancelled",
	models.StatusFailed:          "Delivery Failed",
}

// Label is the display text for a status; unknown statuses show the raw
// backend text so the UI always has something to render.
func Label(st models.Status) string {
	if st.IsUnknown() {
		if st.Raw == "" {
			return "Unknown"
		}
		return st.Raw
	}
	if l, ok := labels[st.Code]; ok {
		return l
	}
	return string(st.Code)
}
