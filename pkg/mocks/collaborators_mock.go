package mocks

import (
	"context"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockMessenger is a mock implementation of protocol.Messenger interface.
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendMessage(ctx context.Context, contactID, text string, at time.Time) error {
	args := m.Called(ctx, contactID, text, at)

	return args.Error(0)
}

func (m *MockMessenger) HasRepliedSince(ctx context.Context, contactID string, since time.Time) (bool, error) {
	args := m.Called(ctx, contactID, since)

	return args.Bool(0), args.Error(1)
}

// MockTaskService is a mock implementation of protocol.TaskService interface.
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) CreateTask(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

// MockLeadBackend is a mock implementation of protocol.LeadBackend interface.
type MockLeadBackend struct {
	mock.Mock
}

func (m *MockLeadBackend) UpdateLeadStatus(ctx context.Context, leadID, columnID string) error {
	args := m.Called(ctx, leadID, columnID)

	return args.Error(0)
}

func (m *MockLeadBackend) UpdateLead(ctx context.Context, leadID string, patch models.LeadPatch) error {
	args := m.Called(ctx, leadID, patch)

	return args.Error(0)
}

func (m *MockLeadBackend) AddInteractionNote(ctx context.Context, leadID string, note *models.Note) error {
	args := m.Called(ctx, leadID, note)

	return args.Error(0)
}

func (m *MockLeadBackend) ListLeads(ctx context.Context) ([]*models.Lead, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Lead), args.Error(1)
}

// MockTeamDirectory is a mock implementation of protocol.TeamDirectory interface.
type MockTeamDirectory struct {
	mock.Mock
}

func (m *MockTeamDirectory) Members(ctx context.Context) ([]*models.TeamMember, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TeamMember), args.Error(1)
}

// MockNotifier is a mock implementation of protocol.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification models.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

// MockBatchStarter is a mock implementation of actions.BatchStarter interface.
type MockBatchStarter struct {
	mock.Mock
}

func (m *MockBatchStarter) Ensure(ctx context.Context, automation *models.Automation, action *models.Action) (*models.BatchTransferState, error) {
	args := m.Called(ctx, automation, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.BatchTransferState), args.Error(1)
}
