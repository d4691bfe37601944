package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/repository"
)

// MockScenarioRepository is a mock type for the ScenarioRepository type
type MockScenarioRepository struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, tree
func (_m *MockScenarioRepository) Save(ctx context.Context, tree *model.ScenarioTree) error {
	ret := _m.Called(ctx, tree)
	return ret.Error(0)
}

// Get provides a mock function with given fields: ctx, id
func (_m *MockScenarioRepository) Get(ctx context.Context, id string) (*model.ScenarioTree, error) {
	ret := _m.Called(ctx, id)

	var r0 *model.ScenarioTree
	if rf, ok := ret.Get(0).(func(context.Context, string) *model.ScenarioTree); ok {
		r0 = rf(ctx, id)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.ScenarioTree)
	}
	return r0, ret.Error(1)
}

// List provides a mock function with given fields: ctx
func (_m *MockScenarioRepository) List(ctx context.Context) ([]model.Summary, error) {
	ret := _m.Called(ctx)

	var r0 []model.Summary
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Summary)
	}
	return r0, ret.Error(1)
}

// NewMockScenarioRepository creates a new instance of MockScenarioRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockScenarioRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockScenarioRepository {
	m := &MockScenarioRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ repository.ScenarioRepository = (*MockScenarioRepository)(nil)
