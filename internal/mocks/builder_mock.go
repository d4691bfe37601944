package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/pipeline"
	"github.com/chris40461/scam-or-safe/internal/service"
)

// MockTreeBuilder is a mock type for the TreeBuilder type
type MockTreeBuilder struct {
	mock.Mock
}

// Build provides a mock function with given fields: ctx, req, progress
func (_m *MockTreeBuilder) Build(ctx context.Context, req pipeline.RootRequest, progress pipeline.ProgressFunc) (*model.ScenarioTree, error) {
	ret := _m.Called(ctx, req, progress)

	var r0 *model.ScenarioTree
	if rf, ok := ret.Get(0).(func(context.Context, pipeline.RootRequest, pipeline.ProgressFunc) *model.ScenarioTree); ok {
		r0 = rf(ctx, req, progress)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.ScenarioTree)
	}
	return r0, ret.Error(1)
}

// NewMockTreeBuilder creates a new instance of MockTreeBuilder.
func NewMockTreeBuilder(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTreeBuilder {
	m := &MockTreeBuilder{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockImageRenderer is a mock type for the ImageRenderer type
type MockImageRenderer struct {
	mock.Mock
}

// Render provides a mock function with given fields: ctx, tree, selectNode
func (_m *MockImageRenderer) Render(ctx context.Context, tree *model.ScenarioTree, selectNode func(*model.ScenarioNode) bool) pipeline.ImageReport {
	ret := _m.Called(ctx, tree, selectNode)
	if rf, ok := ret.Get(0).(func(context.Context, *model.ScenarioTree, func(*model.ScenarioNode) bool) pipeline.ImageReport); ok {
		return rf(ctx, tree, selectNode)
	}
	return ret.Get(0).(pipeline.ImageReport)
}

// NewMockImageRenderer creates a new instance of MockImageRenderer.
func NewMockImageRenderer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockImageRenderer {
	m := &MockImageRenderer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var (
	_ service.TreeBuilder   = (*MockTreeBuilder)(nil)
	_ service.ImageRenderer = (*MockImageRenderer)(nil)
)
