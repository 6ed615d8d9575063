package records

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/BearBump/LoanBox/internal/broker/messages"
	cachemocks "github.com/BearBump/LoanBox/internal/cache/mocks"
	"github.com/BearBump/LoanBox/internal/lifecycle"
	"github.com/BearBump/LoanBox/internal/models"
	recordsmocks "github.com/BearBump/LoanBox/internal/services/records/mocks"
	"github.com/BearBump/LoanBox/internal/storage/pgrecords"
)

const borrowPayload = `{"id":17,"status":"active","approved_date":"2025-03-01","expected_return_date":"2025-03-07"}`

type ServiceSuite struct {
	suite.Suite

	now   time.Time
	repo  *recordsmocks.MockRepository
	cache *cachemocks.MockBytesCache
	svc   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.repo = recordsmocks.NewMockRepository(s.T())
	s.cache = cachemocks.NewMockBytesCache(s.T())
	engine := &lifecycle.Engine{Now: func() time.Time { return s.now }}
	s.svc = New(s.repo, s.cache, 10*time.Minute, engine)
	s.svc.now = func() time.Time { return s.now }
}

func (s *ServiceSuite) key(kind models.Kind, raw string) string {
	return snapshotKey(kind, lifecycle.ContentHash([]byte(raw)))
}

func (s *ServiceSuite) TestCreateRecords_DedupAndCallsRepo() {
	in := []models.RecordCreateInput{
		{Kind: models.KindBorrow, ExternalID: "A"},
		{Kind: models.KindBorrow, ExternalID: "A"},
		{Kind: models.KindDelivery, ExternalID: "A"},
	}
	wantRepoIn := []models.RecordCreateInput{
		{Kind: models.KindBorrow, ExternalID: "A"},
		{Kind: models.KindDelivery, ExternalID: "A"},
	}
	s.repo.On("CreateOrGetRecords", mock.Anything, wantRepoIn).
		Return([]*models.Record{{ID: 1}, {ID: 2}}, nil).
		Once()

	out, err := s.svc.CreateRecords(context.Background(), in)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
}

func (s *ServiceSuite) TestCreateRecords_ValidateErrors() {
	_, err := s.svc.CreateRecords(context.Background(), nil)
	s.Require().ErrorIs(err, ErrInvalidArgument)

	_, err = s.svc.CreateRecords(context.Background(), []models.RecordCreateInput{{Kind: "order", ExternalID: "X"}})
	s.Require().ErrorIs(err, ErrInvalidArgument)

	_, err = s.svc.CreateRecords(context.Background(), []models.RecordCreateInput{{Kind: models.KindBorrow}})
	s.Require().ErrorIs(err, ErrInvalidArgument)

	items := make([]models.RecordCreateInput, maxCreateItems+1)
	for i := range items {
		items[i] = models.RecordCreateInput{Kind: models.KindBorrow, ExternalID: "N"}
	}
	_, err = s.svc.CreateRecords(context.Background(), items)
	s.Require().ErrorIs(err, ErrInvalidArgument)

	s.repo.AssertNotCalled(s.T(), "CreateOrGetRecords", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetRecordsByIDs_EmptyIDs() {
	out, err := s.svc.GetRecordsByIDs(context.Background(), nil)
	s.Require().NoError(err)
	s.Require().Len(out, 0)
	s.repo.AssertNotCalled(s.T(), "GetRecordsByIDs", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetRecordsByIDs_SnapshotCacheMiss_DerivesAndStores() {
	s.repo.On("GetRecordsByIDs", mock.Anything, []uint64{2, 1}).
		Return([]*models.Record{
			{ID: 1, Kind: models.KindBorrow, Payload: json.RawMessage(borrowPayload)},
			{ID: 2, Kind: models.KindBorrow},
		}, nil).
		Once()
	s.cache.On("Get", mock.Anything, s.key(models.KindBorrow, borrowPayload)).
		Return([]byte(nil), false, nil).
		Once()
	s.cache.On("Set", mock.Anything, s.key(models.KindBorrow, borrowPayload), mock.Anything, 10*time.Minute).
		Return(errors.New("set failed")).
		Once()

	out, err := s.svc.GetRecordsByIDs(context.Background(), []uint64{2, 1})
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Require().Equal(uint64(2), out[0].ID)
	s.Require().Nil(out[0].View)

	v := out[1].View
	s.Require().NotNil(v)
	s.Require().Equal("active", v.Status)
	s.Require().True(v.IsOverdue)
	s.Require().Equal(3, *v.DaysOverdue)
}

func (s *ServiceSuite) TestGetRecordsByIDs_SnapshotCacheHit_ViewUsesCurrentTime() {
	engine := &lifecycle.Engine{Now: func() time.Time { return s.now }}
	snap, _, err := engine.Derive(models.KindBorrow, []byte(borrowPayload))
	s.Require().NoError(err)
	b, err := json.Marshal(snap)
	s.Require().NoError(err)

	s.repo.On("GetRecordsByIDs", mock.Anything, []uint64{1}).
		Return([]*models.Record{{ID: 1, Kind: models.KindBorrow, Payload: json.RawMessage(borrowPayload)}}, nil).
		Once()
	s.cache.On("Get", mock.Anything, s.key(models.KindBorrow, borrowPayload)).
		Return(b, true, nil).
		Once()

	s.now = s.now.AddDate(0, 0, 2)
	out, err := s.svc.GetRecordsByIDs(context.Background(), []uint64{1})
	s.Require().NoError(err)
	s.Require().Equal(5, *out[0].View.DaysOverdue)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetRecordsByIDs_CacheErrorAndBadJSON_AreMisses() {
	other := `{"id":18,"status":"pending"}`
	s.repo.On("GetRecordsByIDs", mock.Anything, []uint64{1, 2}).
		Return([]*models.Record{
			{ID: 1, Kind: models.KindBorrow, Payload: json.RawMessage(borrowPayload)},
			{ID: 2, Kind: models.KindReturn, Payload: json.RawMessage(other)},
		}, nil).
		Once()
	s.cache.On("Get", mock.Anything, s.key(models.KindBorrow, borrowPayload)).
		Return([]byte(nil), false, errors.New("redis down")).
		Once()
	s.cache.On("Get", mock.Anything, s.key(models.KindReturn, other)).
		Return([]byte("not-json"), true, nil).
		Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, 10*time.Minute).Return(nil).Twice()

	out, err := s.svc.GetRecordsByIDs(context.Background(), []uint64{1, 2})
	s.Require().NoError(err)
	s.Require().NotNil(out[0].View)
	s.Require().Equal("pending", out[1].View.Status)
}

func (s *ServiceSuite) TestGetRecordsByIDs_DBError() {
	want := errors.New("db error")
	s.repo.On("GetRecordsByIDs", mock.Anything, []uint64{1}).
		Return(nil, want).
		Once()
	_, err := s.svc.GetRecordsByIDs(context.Background(), []uint64{1})
	s.Require().ErrorIs(err, want)
}

func (s *ServiceSuite) TestGetRecordsByIDs_CacheDisabled() {
	svc := New(s.repo, s.cache, 0, nil)
	s.repo.On("GetRecordsByIDs", mock.Anything, []uint64{1}).
		Return([]*models.Record{{ID: 1, Kind: models.KindBorrow, Payload: json.RawMessage(borrowPayload)}}, nil).
		Once()

	out, err := svc.GetRecordsByIDs(context.Background(), []uint64{1})
	s.Require().NoError(err)
	s.Require().NotNil(out[0].View)
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestListRecords() {
	overdue := true
	f := models.RecordFilter{Kind: models.KindReturn, Overdue: &overdue, Limit: 10}
	s.repo.On("ListRecords", mock.Anything, f).Return([]*models.Record{{ID: 3}}, nil).Once()

	out, err := s.svc.ListRecords(context.Background(), f)
	s.Require().NoError(err)
	s.Require().Len(out, 1)

	_, err = s.svc.ListRecords(context.Background(), models.RecordFilter{Kind: "order"})
	s.Require().ErrorIs(err, ErrInvalidArgument)
}

func (s *ServiceSuite) TestListStatusEvents_Passthrough() {
	evs := []*models.StatusEvent{{ID: 1, RecordID: 9}}
	s.repo.On("ListStatusEvents", mock.Anything, uint64(9), 50, 10).Return(evs, nil).Once()
	out, err := s.svc.ListStatusEvents(context.Background(), 9, 50, 10)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
}

func (s *ServiceSuite) TestRefreshRecord_ValidateAndPass() {
	s.Require().ErrorIs(s.svc.RefreshRecord(context.Background(), 0), ErrInvalidArgument)

	s.repo.On("RefreshRecord", mock.Anything, uint64(12)).Return(nil).Once()
	s.Require().NoError(s.svc.RefreshRecord(context.Background(), 12))
}

func (s *ServiceSuite) TestApplyRefresh_PersistsAndWarmsCache() {
	msg := messages.RecordRefreshed{
		RecordID:  10,
		Kind:      models.KindBorrow,
		CheckedAt: s.now,
		Payload:   json.RawMessage(borrowPayload),
		Events: []messages.StatusEvent{
			{Status: "in_delivery", StatusRaw: "out_for_delivery", EventTime: s.now},
		},
	}

	s.cache.On("Get", mock.Anything, s.key(models.KindBorrow, borrowPayload)).Return([]byte(nil), false, nil).Once()
	s.cache.On("Set", mock.Anything, s.key(models.KindBorrow, borrowPayload), mock.Anything, 10*time.Minute).Return(nil).Once()
	s.repo.On("ApplyRecordUpdate", mock.Anything, mock.MatchedBy(func(upd pgrecords.RecordUpdate) bool {
		return upd.RecordID == 10 &&
			upd.PayloadHash == lifecycle.ContentHash([]byte(borrowPayload)) &&
			upd.Status == "active" &&
			upd.StatusRaw == "active" &&
			upd.View != nil && upd.View.IsOverdue &&
			upd.DueAt != nil && upd.DueAt.Equal(time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)) &&
			upd.CompletedAt == nil &&
			upd.NextCheckAt.Sub(upd.CheckedAt) == 60*time.Minute &&
			len(upd.Events) == 1 && upd.Events[0].RecordID == 10
	})).Return(nil).Once()

	s.Require().NoError(s.svc.ApplyRefresh(context.Background(), msg))
}

func (s *ServiceSuite) TestApplyRefresh_StoresCompletionTime() {
	raw := `{"id":17,"status":"active","approved_date":"2025-03-01","expected_return_date":"2025-03-07","actual_return_date":"2025-03-08"}`
	s.cache.On("Get", mock.Anything, s.key(models.KindBorrow, raw)).Return([]byte(nil), false, nil).Once()
	s.cache.On("Set", mock.Anything, s.key(models.KindBorrow, raw), mock.Anything, 10*time.Minute).Return(nil).Once()
	s.repo.On("ApplyRecordUpdate", mock.Anything, mock.MatchedBy(func(upd pgrecords.RecordUpdate) bool {
		return upd.Status == "active" &&
			upd.View != nil && !upd.View.IsOverdue &&
			upd.CompletedAt != nil && upd.CompletedAt.Equal(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC))
	})).Return(nil).Once()

	s.Require().NoError(s.svc.ApplyRefresh(context.Background(), messages.RecordRefreshed{
		RecordID:  11,
		Kind:      models.KindBorrow,
		CheckedAt: s.now,
		Payload:   json.RawMessage(raw),
	}))
}

func (s *ServiceSuite) TestApplyRefresh_ErrorUpdateSkipsDerivation() {
	e := "backend 503"
	s.repo.On("ApplyRecordUpdate", mock.Anything, mock.MatchedBy(func(upd pgrecords.RecordUpdate) bool {
		return upd.Error != nil && *upd.Error == e && upd.View == nil && !upd.CheckedAt.IsZero()
	})).Return(nil).Once()

	s.Require().NoError(s.svc.ApplyRefresh(context.Background(), messages.RecordRefreshed{
		RecordID: 4,
		Kind:     models.KindBorrow,
		Payload:  json.RawMessage(borrowPayload),
		Error:    &e,
	}))
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestApplyRefresh_Validate() {
	err := s.svc.ApplyRefresh(context.Background(), messages.RecordRefreshed{})
	s.Require().ErrorIs(err, ErrInvalidArgument)
	s.repo.AssertNotCalled(s.T(), "ApplyRecordUpdate", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestApplyRefresh_RepoErrorStops() {
	want := errors.New("apply failed")
	s.repo.On("ApplyRecordUpdate", mock.Anything, mock.Anything).Return(want).Once()
	err := s.svc.ApplyRefresh(context.Background(), messages.RecordRefreshed{RecordID: 99, CheckedAt: s.now})
	s.Require().ErrorIs(err, want)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
