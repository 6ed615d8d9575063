package mocks

import (
	context "context"

	mock "github.com/stretchr/testify/mock"

	models "github.com/BearBump/LoanBox/internal/models"
	pgrecords "github.com/BearBump/LoanBox/internal/storage/pgrecords"
)

// MockRepository is a mock of records.Repository.
type MockRepository struct {
	mock.Mock
}

func records(ret mock.Arguments) []*models.Record {
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).([]*models.Record)
}

func (_m *MockRepository) CreateOrGetRecords(ctx context.Context, items []models.RecordCreateInput) ([]*models.Record, error) {
	ret := _m.Called(ctx, items)
	return records(ret), ret.Error(1)
}

func (_m *MockRepository) GetRecordsByIDs(ctx context.Context, ids []uint64) ([]*models.Record, error) {
	ret := _m.Called(ctx, ids)
	return records(ret), ret.Error(1)
}

func (_m *MockRepository) ListRecords(ctx context.Context, f models.RecordFilter) ([]*models.Record, error) {
	ret := _m.Called(ctx, f)
	return records(ret), ret.Error(1)
}

func (_m *MockRepository) ListStatusEvents(ctx context.Context, recordID uint64, limit, offset int) ([]*models.StatusEvent, error) {
	ret := _m.Called(ctx, recordID, limit, offset)

	var r0 []*models.StatusEvent
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*models.StatusEvent)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) RefreshRecord(ctx context.Context, recordID uint64) error {
	ret := _m.Called(ctx, recordID)
	return ret.Error(0)
}

func (_m *MockRepository) ApplyRecordUpdate(ctx context.Context, upd pgrecords.RecordUpdate) error {
	ret := _m.Called(ctx, upd)
	return ret.Error(0)
}

// NewMockRepository registers AssertExpectations on test cleanup.
func NewMockRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
