package mocks

import mock "github.com/stretchr/testify/mock"

// Rand is a mock of poller.Rand.
type Rand struct {
	mock.Mock
}

func (_m *Rand) Intn(n int) int {
	ret := _m.Called(n)

	if rf, ok := ret.Get(0).(func(int) int); ok {
		return rf(n)
	}
	return ret.Int(0)
}

// NewRand registers AssertExpectations on test cleanup.
func NewRand(t interface {
	mock.TestingT
	Cleanup(func())
}) *Rand {
	m := &Rand{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
