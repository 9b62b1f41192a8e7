// Package mocks provides test doubles for the gsc client.
package mocks

import (
	"context"

	gsc "github.com/sells-group/seo-monitor/pkg/gsc"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// InspectURL provides a mock function with given fields: ctx, req
func (_m *MockClient) InspectURL(ctx context.Context, req gsc.InspectRequest) (*gsc.InspectionResult, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for InspectURL")
	}

	var r0 *gsc.InspectionResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, gsc.InspectRequest) (*gsc.InspectionResult, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, gsc.InspectRequest) *gsc.InspectionResult); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*gsc.InspectionResult)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, gsc.InspectRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// QuerySearchAnalytics provides a mock function with given fields: ctx, site, q
func (_m *MockClient) QuerySearchAnalytics(ctx context.Context, site string, q gsc.SearchAnalyticsQuery) (*gsc.SearchAnalyticsResponse, error) {
	ret := _m.Called(ctx, site, q)

	if len(ret) == 0 {
		panic("no return value specified for QuerySearchAnalytics")
	}

	var r0 *gsc.SearchAnalyticsResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, gsc.SearchAnalyticsQuery) (*gsc.SearchAnalyticsResponse, error)); ok {
		return rf(ctx, site, q)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, gsc.SearchAnalyticsQuery) *gsc.SearchAnalyticsResponse); ok {
		r0 = rf(ctx, site, q)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*gsc.SearchAnalyticsResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, gsc.SearchAnalyticsQuery) error); ok {
		r1 = rf(ctx, site, q)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
