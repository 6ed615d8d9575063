package mocks

import (
	context "context"
	time "time"

	mock "github.com/stretchr/testify/mock"
)

// MockBytesCache is a mock of cache.BytesCache.
type MockBytesCache struct {
	mock.Mock
}

func (_m *MockBytesCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ret := _m.Called(ctx, key)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, string) []byte); ok {
		r0 = rf(ctx, key)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	return r0, ret.Bool(1), ret.Error(2)
}

func (_m *MockBytesCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ret := _m.Called(ctx, key, value, ttl)
	return ret.Error(0)
}

// NewMockBytesCache registers AssertExpectations on test cleanup.
func NewMockBytesCache(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBytesCache {
	m := &MockBytesCache{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
