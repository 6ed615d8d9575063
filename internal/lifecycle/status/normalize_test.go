package status

import (
	"testing"

	"github.com/BearBump/LoanBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ReturnAliasesCollapse(t *testing.T) {
	for _, raw := range []string{"in progress", "in_progress", "IN_PROGRESS", "in_return", "In Return", "returning_to_library", "returning-to-library"} {
		require.Equal(t, models.Known(models.StatusInProgress), Normalize(models.DomainReturn, raw), raw)
	}
}

func TestNormalize_DeliveryAliases(t *testing.T) {
	require.Equal(t, models.StatusPending, Normalize(models.DomainDelivery, "pending_assignment").Code)
	require.Equal(t, models.StatusPending, Normalize(models.DomainDelivery, "PENDING").Code)
	require.Equal(t, models.StatusInDelivery, Normalize(models.DomainDelivery, "out_for_delivery").Code)
	require.Equal(t, models.StatusInDelivery, Normalize(models.DomainDelivery, "In Delivery").Code)
	require.Equal(t, models.StatusDelivered, Normalize(models.DomainDelivery, "completed").Code)
	require.Equal(t, models.StatusCancelled, Normalize(models.DomainDelivery, "canceled").Code)
}

func TestNormalize_ReturnTripIsInDelivery(t *testing.T) {
	for _, raw := range []string{"picked_up", "Picked-Up", "in_return", "returning", "returning to library"} {
		require.Equal(t, models.Known(models.StatusInDelivery), Normalize(models.DomainDelivery, raw), raw)
	}
	require.Equal(t, models.StatusInProgress, Normalize(models.DomainReturn, "picked_up").Code)
}

func TestNormalize_BorrowUnderstandsDeliveryVocabulary(t *testing.T) {
	require.Equal(t, models.StatusInDelivery, Normalize(models.DomainBorrow, "in_delivery").Code)
	require.Equal(t, models.StatusCompleted, Normalize(models.DomainBorrow, "returned").Code)
	require.Equal(t, models.StatusActive, Normalize(models.DomainBorrow, "borrowed").Code)
	require.Equal(t, models.StatusCompleted, Normalize(models.DomainBorrow, "completed").Code)
}

func TestNormalize_UnknownKeepsRaw(t *testing.T) {
	st := Normalize(models.DomainDelivery, "  Lost In Space ")
	require.True(t, st.IsUnknown())
	require.Equal(t, "  Lost In Space ", st.Raw)
	require.Equal(t, "  Lost In Space ", st.String())
}

func TestNormalize_BlankIsPending(t *testing.T) {
	require.Equal(t, models.Known(models.StatusPending), Normalize(models.DomainBorrow, ""))
	require.Equal(t, models.Known(models.StatusPending), Normalize(models.DomainBorrow, "   "))
}

func TestFold(t *testing.T) {
	require.Equal(t, "in_progress", Fold(" In -- Progress "))
	require.Equal(t, "", Fold("  "))
}

func TestFineStatusAndMethod(t *testing.T) {
	require.Equal(t, models.FinePendingCashPayment, FineStatus("Pending Cash"))
	require.Equal(t, models.FinePaid, FineStatus("COMPLETED"))
	require.Equal(t, models.FineFailed, FineStatus("declined"))
	require.Equal(t, models.FineUnpaid, FineStatus(""))
	require.Equal(t, models.FineUnpaid, FineStatus("whatever"))

	require.Equal(t, models.PaymentCash, PaymentMethod("Cash on delivery"))
	require.Equal(t, models.PaymentCard, PaymentMethod("mastercard"))
	require.Equal(t, models.PaymentMethod(""), PaymentMethod("crypto"))
}

func TestLabel(t *testing.T) {
	require.Equal(t, "In Delivery", Label(models.Known(models.StatusInDelivery)))
	require.Equal(t, "lost_parcel", Label(models.Unknown("lost_parcel")))
	require.Equal(t, "Unknown", Label(models.Unknown("")))
}
