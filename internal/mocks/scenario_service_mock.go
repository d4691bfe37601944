package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/pipeline"
	"github.com/chris40461/scam-or-safe/internal/service"
)

// MockScenarioService is a mock type for the ScenarioService type
type MockScenarioService struct {
	mock.Mock
}

// StartGeneration provides a mock function with given fields: ctx, req
func (_m *MockScenarioService) StartGeneration(ctx context.Context, req service.GenerateRequest) (*model.GenerationTask, error) {
	ret := _m.Called(ctx, req)
	var r0 *model.GenerationTask
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.GenerationTask)
	}
	return r0, ret.Error(1)
}

// Generate provides a mock function with given fields: ctx, req, progress
func (_m *MockScenarioService) Generate(ctx context.Context, req service.GenerateRequest, progress pipeline.ProgressFunc) (*model.ScenarioTree, error) {
	ret := _m.Called(ctx, req, progress)
	var r0 *model.ScenarioTree
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.ScenarioTree)
	}
	return r0, ret.Error(1)
}

// Task provides a mock function with given fields: ctx, id
func (_m *MockScenarioService) Task(ctx context.Context, id string) (*model.GenerationTask, error) {
	ret := _m.Called(ctx, id)
	var r0 *model.GenerationTask
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.GenerationTask)
	}
	return r0, ret.Error(1)
}

// CancelTask provides a mock function with given fields: id
func (_m *MockScenarioService) CancelTask(id string) error {
	ret := _m.Called(id)
	return ret.Error(0)
}

// Get provides a mock function with given fields: ctx, id
func (_m *MockScenarioService) Get(ctx context.Context, id string) (*model.ScenarioTree, error) {
	ret := _m.Called(ctx, id)
	var r0 *model.ScenarioTree
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.ScenarioTree)
	}
	return r0, ret.Error(1)
}

// List provides a mock function with given fields: ctx
func (_m *MockScenarioService) List(ctx context.Context) ([]model.Summary, error) {
	ret := _m.Called(ctx)
	var r0 []model.Summary
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Summary)
	}
	return r0, ret.Error(1)
}

// PlayerView provides a mock function with given fields: ctx, id
func (_m *MockScenarioService) PlayerView(ctx context.Context, id string) (*model.PlayerScenario, error) {
	ret := _m.Called(ctx, id)
	var r0 *model.PlayerScenario
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.PlayerScenario)
	}
	return r0, ret.Error(1)
}

// RegenerateImages provides a mock function with given fields: ctx, id, nodeIDs
func (_m *MockScenarioService) RegenerateImages(ctx context.Context, id string, nodeIDs []string) (*pipeline.ImageReport, error) {
	ret := _m.Called(ctx, id, nodeIDs)
	var r0 *pipeline.ImageReport
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*pipeline.ImageReport)
	}
	return r0, ret.Error(1)
}

// NewMockScenarioService creates a new instance of MockScenarioService.
func NewMockScenarioService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockScenarioService {
	m := &MockScenarioService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.ScenarioService = (*MockScenarioService)(nil)
