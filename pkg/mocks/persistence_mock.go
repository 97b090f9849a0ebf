package mocks

import (
	"context"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockAutomationRepository is a mock implementation of persistence.AutomationRepository interface.
type MockAutomationRepository struct {
	mock.Mock
}

func (m *MockAutomationRepository) Automations(ctx context.Context) ([]*models.Automation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Automation), args.Error(1)
}

func (m *MockAutomationRepository) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Automation), args.Error(1)
}

func (m *MockAutomationRepository) AutomationsByColumn(ctx context.Context, columnID string) ([]*models.Automation, error) {
	args := m.Called(ctx, columnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Automation), args.Error(1)
}

func (m *MockAutomationRepository) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	args := m.Called(ctx, automation)

	return args.Error(0)
}

func (m *MockAutomationRepository) DeleteAutomation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) AutomationRepository() persistence.AutomationRepository {
	args := m.Called()

	return args.Get(0).(persistence.AutomationRepository)
}

func (m *MockPersistence) PauseRepository() persistence.PauseRepository {
	args := m.Called()

	return args.Get(0).(persistence.PauseRepository)
}

func (m *MockPersistence) CurrentActionRepository() persistence.CurrentActionRepository {
	args := m.Called()

	return args.Get(0).(persistence.CurrentActionRepository)
}

func (m *MockPersistence) BatchTransferRepository() persistence.BatchTransferRepository {
	args := m.Called()

	return args.Get(0).(persistence.BatchTransferRepository)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
