package httpbackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/LoanBox/internal/integrations/backend"
	"github.com/BearBump/LoanBox/internal/models"
)

func TestClient_FetchRecord_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/borrow-requests/42/", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "status": "approved"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", 0, time.Second)
	raw, err := c.FetchRecord(context.Background(), models.KindBorrow, "42")
	require.NoError(t, err)
	require.JSONEq(t, `{"id": 42, "status": "approved"}`, string(raw))
}

func TestClient_FetchRecord_UnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/delivery-assignments/7/", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success": true, "data": {"id": 7, "status": "assigned"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", 0, time.Second)
	raw, err := c.FetchRecord(context.Background(), models.KindDelivery, "7")
	require.NoError(t, err)
	require.JSONEq(t, `{"id": 7, "status": "assigned"}`, string(raw))
}

func TestClient_FetchRecord_Errors(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, backend.ErrNotFound},
		{http.StatusTooManyRequests, backend.ErrRateLimited},
		{http.StatusBadGateway, nil},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))

		c := New(srv.URL, "", 0, time.Second)
		_, err := c.FetchRecord(context.Background(), models.KindReturn, "1")
		require.Error(t, err)
		if tc.want != nil {
			require.ErrorIs(t, err, tc.want)
		} else {
			require.EqualError(t, err, "backend http 502")
			var traced interface{ StackTrace() errors.StackTrace }
			require.ErrorAs(t, err, &traced)
		}
		srv.Close()
	}
}

func TestClient_FetchRecord_UnsupportedKind(t *testing.T) {
	c := New("http://127.0.0.1:1", "", 0, time.Second)
	_, err := c.FetchRecord(context.Background(), models.Kind("order"), "1")
	require.Error(t, err)
}

func TestClient_FetchRecord_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", 20, time.Second)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.FetchRecord(context.Background(), models.KindBorrow, "1")
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestClient_FetchRecord_ContextCancelled(t *testing.T) {
	c := New("http://127.0.0.1:1", "", 0.001, time.Second)
	c.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchRecord(ctx, models.KindBorrow, "1")
	require.Error(t, err)
}
