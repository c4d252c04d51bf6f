// Package mocks provides test doubles for the rapidgoogle client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	rapidgoogle "github.com/sells-group/leadenrich-cli/pkg/rapidgoogle"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, query, limit
func (_m *MockClient) Search(ctx context.Context, query string, limit int) ([]rapidgoogle.Result, error) {
	ret := _m.Called(ctx, query, limit)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []rapidgoogle.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int) ([]rapidgoogle.Result, error)); ok {
		return rf(ctx, query, limit)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, int) []rapidgoogle.Result); ok {
		r0 = rf(ctx, query, limit)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]rapidgoogle.Result)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, int) error); ok {
		r1 = rf(ctx, query, limit)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient with cleanup registered.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
