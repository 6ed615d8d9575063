package pgrecords

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BearBump/LoanBox/internal/models"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "loanbox_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/loanbox_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestPGRecords_RepoFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	created, err := st.CreateOrGetRecords(ctx, []models.RecordCreateInput{
		{Kind: models.KindBorrow, ExternalID: "17"},
		{Kind: models.KindDelivery, ExternalID: "17"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.NotZero(t, created[0].ID)
	require.Equal(t, string(models.StatusPending), created[0].Status)

	again, err := st.CreateOrGetRecords(ctx, []models.RecordCreateInput{{Kind: models.KindBorrow, ExternalID: "17"}})
	require.NoError(t, err)
	require.Equal(t, created[0].ID, again[0].ID)

	_, err = st.db.Exec(ctx, `UPDATE records SET next_check_at = now() - interval '1 minute' WHERE id = $1`, created[0].ID)
	require.NoError(t, err)
	_, err = st.db.Exec(ctx, `UPDATE records SET next_check_at = now() + interval '1 hour' WHERE id = $1`, created[1].ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	lease := 10 * time.Second
	due, err := st.ClaimDueRecords(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, created[0].ID, due[0].ID)
	require.WithinDuration(t, now.Add(lease), due[0].NextCheckAt, 2*time.Second)

	dueAt := now.Add(-48 * time.Hour)
	evTime := now.Add(-time.Hour)
	desc := "picked up"
	upd := RecordUpdate{
		RecordID:    created[0].ID,
		CheckedAt:   now,
		Payload:     json.RawMessage(`{"id":17,"status":"active"}`),
		PayloadHash: "h1",
		Status:      string(models.StatusActive),
		StatusRaw:   "active",
		View:        &models.View{Kind: models.KindBorrow, ID: "17", Status: "active", IsOverdue: true},
		DueAt:       &dueAt,
		NextCheckAt: now.Add(30 * time.Minute),
		Events: []*models.StatusEvent{
			{Status: "in_delivery", StatusRaw: "out_for_delivery", EventTime: evTime, Description: &desc},
		},
	}
	require.NoError(t, st.ApplyRecordUpdate(ctx, upd))
	require.NoError(t, st.ApplyRecordUpdate(ctx, upd))

	evs, err := st.ListStatusEvents(ctx, created[0].ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.WithinDuration(t, evTime, evs[0].EventTime, time.Second)
	require.Equal(t, "picked up", *evs[0].Description)

	got, err := st.GetRecordsByIDs(ctx, []uint64{created[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "h1", got[0].PayloadHash)
	require.NotNil(t, got[0].View)
	require.True(t, got[0].View.IsOverdue)
	require.JSONEq(t, `{"id":17,"status":"active"}`, string(got[0].Payload))

	overdue := true
	listed, err := st.ListRecords(ctx, models.RecordFilter{Kind: models.KindBorrow, Overdue: &overdue})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	notOverdue := false
	listed, err = st.ListRecords(ctx, models.RecordFilter{Overdue: &notOverdue})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, created[1].ID, listed[0].ID)

	listed, err = st.ListRecords(ctx, models.RecordFilter{Statuses: []string{"active", "pending"}})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	// Returned late but still reported as active by the backend.
	returnedAt := now.Add(-24 * time.Hour)
	finished := upd
	finished.Events = nil
	finished.View = &models.View{Kind: models.KindBorrow, ID: "17", Status: "active"}
	finished.CompletedAt = &returnedAt
	require.NoError(t, st.ApplyRecordUpdate(ctx, finished))

	got, err = st.GetRecordsByIDs(ctx, []uint64{created[0].ID})
	require.NoError(t, err)
	require.NotNil(t, got[0].CompletedAt)
	require.WithinDuration(t, returnedAt, *got[0].CompletedAt, time.Second)

	listed, err = st.ListRecords(ctx, models.RecordFilter{Overdue: &overdue})
	require.NoError(t, err)
	require.Empty(t, listed)

	listed, err = st.ListRecords(ctx, models.RecordFilter{Overdue: &notOverdue})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	msg := "backend 503"
	require.NoError(t, st.ApplyRecordUpdate(ctx, RecordUpdate{
		RecordID:    created[0].ID,
		CheckedAt:   now,
		NextCheckAt: now.Add(5 * time.Minute),
		Error:       &msg,
	}))
	got, err = st.GetRecordsByIDs(ctx, []uint64{created[0].ID})
	require.NoError(t, err)
	require.Equal(t, int32(1), got[0].CheckFailCount)
	require.Equal(t, "h1", got[0].PayloadHash)

	require.NoError(t, st.RefreshRecord(ctx, created[0].ID))
	require.ErrorIs(t, st.RefreshRecord(ctx, 999999), models.ErrRecordNotFound)
	require.ErrorIs(t, st.ApplyRecordUpdate(ctx, RecordUpdate{
		RecordID:    999999,
		CheckedAt:   time.Now(),
		NextCheckAt: time.Now(),
	}), models.ErrRecordNotFound)
}
