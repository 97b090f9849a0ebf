package main

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/cmd"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type backendMock struct {
	*mocks.MockLeadBackend
	*mocks.MockTaskService
	*mocks.MockTeamDirectory
}

type workerFixture struct {
	worker  *WorkerManager
	runtime *cmd.Runtime
	store   *file.Persistence
	bus     *mocks.MockEventBus
	leads   *mocks.MockLeadBackend
	tasks   *mocks.MockTaskService
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := file.NewPersistence(t.TempDir())

	require.NoError(t, store.AutomationRepository().SaveAutomation(t.Context(), &models.Automation{
		ID:       "closing",
		Name:     "Closing",
		ColumnID: "ganho",
		Trigger:  models.TriggerOnEnter,
		Active:   true,
		Actions: []*models.Action{
			{ID: "review", Type: models.ActionTypeManual, Mode: models.ActionModeManual, Enabled: true, Config: &models.ManualConfig{}},
			{ID: "call", Type: models.ActionTypeTask, Mode: models.ActionModeAutomatic, Enabled: true, Config: &models.TaskConfig{Title: "Ligar"}},
		},
	}))

	leads := &mocks.MockLeadBackend{}
	leads.On("AddInteractionNote", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	tasks := &mocks.MockTaskService{}

	notifier := &mocks.MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()

	runtime := cmd.NewRuntime(cmd.RuntimeDependencies{
		Persistence: store,
		Backend:     backendMock{MockLeadBackend: leads, MockTaskService: tasks, MockTeamDirectory: &mocks.MockTeamDirectory{}},
		Messenger:   &mocks.MockMessenger{},
		Notifier:    notifier,
		Logger:      logger,
	})
	t.Cleanup(runtime.Stop)

	bus := &mocks.MockEventBus{}

	return &workerFixture{
		worker:  NewWorkerManager("test-worker", runtime.Engine, bus, logger),
		runtime: runtime,
		store:   store,
		bus:     bus,
		leads:   leads,
		tasks:   tasks,
	}
}

func TestNewWorkerManager(t *testing.T) {
	f := newWorkerFixture(t)

	assert.Equal(t, "test-worker", f.worker.id)
	assert.Equal(t, f.bus, f.worker.eventBus)
	assert.NotNil(t, f.worker.logger)
}

func TestWorkerManager_Start(t *testing.T) {
	f := newWorkerFixture(t)

	f.bus.On("Handle", events.LeadEnteredColumnEvent, mock.Anything).Return(nil).Once()
	f.bus.On("Handle", events.PauseResolutionRequestedEvent, mock.Anything).Return(nil).Once()
	f.bus.On("Subscribe", mock.Anything).Return(nil).Once()

	require.NoError(t, f.worker.Start(t.Context()))
	f.bus.AssertExpectations(t)
}

func TestWorkerManager_StartSubscribeFailure(t *testing.T) {
	f := newWorkerFixture(t)

	f.bus.On("Handle", mock.Anything, mock.Anything).Return(nil)
	f.bus.On("Subscribe", mock.Anything).Return(errors.New("broker down")).Once()

	err := f.worker.Start(t.Context())
	assert.EqualError(t, err, "broker down")
}

func TestWorkerManager_HandleLeadEnteredColumn_InvalidEvent(t *testing.T) {
	f := newWorkerFixture(t)

	assert.NoError(t, f.worker.handleLeadEnteredColumn(t.Context(), "invalid-event"))
	assert.NoError(t, f.worker.handleLeadEnteredColumn(t.Context(), &events.LeadEnteredColumn{ColumnID: "ganho"}))
}

func TestWorkerManager_HandleLeadEnteredColumn(t *testing.T) {
	f := newWorkerFixture(t)

	err := f.worker.handleLeadEnteredColumn(t.Context(), &events.LeadEnteredColumn{
		BaseEvent:      events.BaseEvent{ID: "evt-1", Type: events.LeadEnteredColumnEvent},
		Lead:           &models.Lead{ID: "L1", Name: "Ana", Status: "novo"},
		ColumnID:       "ganho",
		SourceColumnID: "novo",
	})
	require.NoError(t, err)

	pause, paused := f.runtime.Engine.Ledger().Get("L1")
	require.True(t, paused)
	assert.Equal(t, "review", pause.ActionID)
	f.tasks.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
}

func TestWorkerManager_HandlePauseResolutionRequested(t *testing.T) {
	f := newWorkerFixture(t)

	require.NoError(t, f.worker.handleLeadEnteredColumn(t.Context(), &events.LeadEnteredColumn{
		Lead:     &models.Lead{ID: "L1", Name: "Ana", Status: "novo"},
		ColumnID: "ganho",
	}))

	f.tasks.On("CreateTask", mock.Anything, mock.MatchedBy(func(task *models.Task) bool {
		return task.LeadID == "L1" && task.Title == "Ligar"
	})).Return(nil).Once()

	err := f.worker.handlePauseResolutionRequested(t.Context(), &events.PauseResolutionRequested{
		BaseEvent: events.BaseEvent{ID: "evt-2", Type: events.PauseResolutionRequestedEvent, Timestamp: time.Now()},
		LeadID:    "L1",
		Decision:  models.DecisionIgnore,
		Resume:    models.ResumeTarget{Kind: models.ResumeAction, ActionID: "call"},
	})
	require.NoError(t, err)

	_, paused := f.runtime.Engine.Ledger().Get("L1")
	assert.False(t, paused)
	f.tasks.AssertExpectations(t)

	// A second answer to the same pause is a no-op.
	err = f.worker.handlePauseResolutionRequested(t.Context(), &events.PauseResolutionRequested{
		LeadID:   "L1",
		Decision: models.DecisionIgnore,
	})
	assert.NoError(t, err)
}

func TestWorkerManager_HandlePauseResolutionRequested_InvalidEvent(t *testing.T) {
	f := newWorkerFixture(t)

	assert.NoError(t, f.worker.handlePauseResolutionRequested(t.Context(), "invalid-event"))
}
