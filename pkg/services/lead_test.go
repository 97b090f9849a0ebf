package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLeadService(t *testing.T) (*Lead, *file.Persistence, *mocks.MockEventBus) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-1").Maybe()

	t.Cleanup(func() { bus.AssertExpectations(t) })

	return NewLead(store, bus), store, bus
}

func saveAutomation(t *testing.T, store persistence.Persistence, automation *models.Automation) {
	t.Helper()

	require.NoError(t, store.AutomationRepository().SaveAutomation(t.Context(), automation))
}

func twoStepAutomation() *models.Automation {
	return &models.Automation{
		ID:       "welcome",
		Name:     "Welcome",
		ColumnID: "novo",
		Trigger:  models.TriggerOnEnter,
		Active:   true,
		Actions: []*models.Action{
			{ID: "hello", Type: models.ActionTypeWhatsApp, Enabled: true, Config: &models.WhatsAppConfig{Message: "Olá"}},
			{ID: "review", Type: models.ActionTypeManual, Mode: models.ActionModeManual, Enabled: true, Config: &models.ManualConfig{}},
			{ID: "call", Type: models.ActionTypeTask, Enabled: true, Config: &models.TaskConfig{Title: "Ligar"}},
		},
	}
}

func TestLead_EnterPublishesEvent(t *testing.T) {
	service, _, bus := newLeadService(t)

	bus.On("Publish", mock.Anything, "L1", mock.MatchedBy(func(event events.LeadEnteredColumn) bool {
		return event.Lead.ID == "L1" && event.ColumnID == "novo" && event.SourceColumnID == "triagem" && event.ID == "evt-1"
	})).Return(nil).Once()

	err := service.Enter(t.Context(), EnterRequest{
		Lead:           &models.Lead{ID: "L1", Name: "Ana"},
		ColumnID:       "novo",
		SourceColumnID: "triagem",
	})
	require.NoError(t, err)
}

func TestLead_EnterAsksForStartAction(t *testing.T) {
	service, store, _ := newLeadService(t)
	saveAutomation(t, store, twoStepAutomation())

	err := service.Enter(t.Context(), EnterRequest{Lead: &models.Lead{ID: "L1"}, ColumnID: "novo"})
	require.ErrorIs(t, err, ErrStartActionRequired)
	assert.True(t, IsConflictError(err))

	var choice *StartChoiceError
	require.ErrorAs(t, err, &choice)
	assert.Equal(t, "welcome", choice.AutomationID)

	ids := make([]string, 0, len(choice.Candidates))
	for _, action := range choice.Candidates {
		ids = append(ids, action.ID)
	}

	assert.Equal(t, []string{"hello", "review", "call"}, ids)
}

func TestLead_EnterWithStartAction(t *testing.T) {
	service, store, bus := newLeadService(t)
	saveAutomation(t, store, twoStepAutomation())

	bus.On("Publish", mock.Anything, "L1", mock.MatchedBy(func(event events.LeadEnteredColumn) bool {
		return event.StartActionID == "call"
	})).Return(nil).Once()

	require.NoError(t, service.Enter(t.Context(), EnterRequest{Lead: &models.Lead{ID: "L1"}, ColumnID: "novo", StartActionID: "call"}))

	err := service.Enter(t.Context(), EnterRequest{Lead: &models.Lead{ID: "L1"}, ColumnID: "novo", StartActionID: "ghost"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLead_EnterSingleActionNeedsNoChoice(t *testing.T) {
	service, store, bus := newLeadService(t)

	automation := twoStepAutomation()
	automation.Actions[1].Enabled = false
	automation.Actions[2].Enabled = false
	saveAutomation(t, store, automation)

	bus.On("Publish", mock.Anything, "L1", mock.Anything).Return(nil).Once()

	assert.NoError(t, service.Enter(t.Context(), EnterRequest{Lead: &models.Lead{ID: "L1"}, ColumnID: "novo"}))
}

func TestLead_EnterValidation(t *testing.T) {
	service, _, _ := newLeadService(t)

	err := service.Enter(t.Context(), EnterRequest{ColumnID: "novo"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = service.Enter(t.Context(), EnterRequest{Lead: &models.Lead{ID: "L1"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLead_EnterPublishFailure(t *testing.T) {
	service, _, bus := newLeadService(t)

	bus.On("Publish", mock.Anything, "L1", mock.Anything).Return(errors.New("broker down")).Once()

	err := service.Enter(t.Context(), EnterRequest{Lead: &models.Lead{ID: "L1"}, ColumnID: "novo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestLead_CurrentAction(t *testing.T) {
	service, store, _ := newLeadService(t)

	require.NoError(t, store.CurrentActionRepository().SetCurrentAction(t.Context(), "L1", "hello"))

	current, err := service.CurrentAction(t.Context(), "L1")
	require.NoError(t, err)
	assert.Equal(t, "hello", current)

	current, err = service.CurrentAction(t.Context(), "L2")
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestLead_ResolvePause(t *testing.T) {
	service, store, bus := newLeadService(t)
	saveAutomation(t, store, twoStepAutomation())

	require.NoError(t, store.PauseRepository().SavePause(t.Context(), &models.PauseState{
		LeadID:       "L1",
		AutomationID: "welcome",
		ColumnID:     "novo",
		ActionID:     "review",
		PausedAt:     time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}))

	pauses, err := service.Pauses(t.Context())
	require.NoError(t, err)
	require.Len(t, pauses, 1)

	bus.On("Publish", mock.Anything, "L1", mock.MatchedBy(func(event events.PauseResolutionRequested) bool {
		return event.Decision == models.DecisionExecute && event.Resume.ActionID == "call"
	})).Return(nil).Once()

	err = service.ResolvePause(t.Context(), "L1", models.DecisionExecute, models.ResumeTarget{Kind: models.ResumeAction, ActionID: "call"})
	require.NoError(t, err)

	err = service.ResolvePause(t.Context(), "L1", models.DecisionIgnore, models.ResumeTarget{Kind: models.ResumeAction, ActionID: "review"})
	require.ErrorIs(t, err, ErrInvalidResolution)

	err = service.ResolvePause(t.Context(), "L1", "maybe", models.ResumeTarget{})
	require.ErrorIs(t, err, ErrInvalidResolution)

	err = service.ResolvePause(t.Context(), "L2", models.DecisionIgnore, models.ResumeTarget{})
	assert.True(t, persistence.IsPauseNotFound(err))
}

func TestLead_BatchTransfers(t *testing.T) {
	service, store, _ := newLeadService(t)

	require.NoError(t, store.BatchTransferRepository().SaveBatchTransfer(t.Context(), &models.BatchTransferState{
		ID:             "welcome:batch",
		AutomationID:   "welcome",
		ActionID:       "batch",
		SourceColumnID: "novo",
		TargetFunnelID: "f2",
		TargetColumnID: "c1",
		BatchSize:      5,
		Active:         true,
	}))

	states, err := service.BatchTransfers(t.Context())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "welcome:batch", states[0].ID)
}
