package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/flow"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// Lead turns board and operator commands into events for the worker, and reads the run state
// the worker persists.
type Lead struct {
	persistence persistence.Persistence
	bus         eventbus.EventBus
}

func NewLead(persistence persistence.Persistence, bus eventbus.EventBus) *Lead {
	return &Lead{persistence: persistence, bus: bus}
}

// EnterRequest describes a confirmed column change of a lead.
type EnterRequest struct {
	Lead           *models.Lead
	ColumnID       string
	SourceColumnID string
	StartActionID  string
	Variables      map[string]string
}

// Enter publishes the column entry. When the column's automation has more than one enabled
// action and no start action was chosen, it returns a *StartChoiceError listing them instead.
func (s *Lead) Enter(ctx context.Context, req EnterRequest) error {
	if req.Lead == nil || req.Lead.ID == "" || req.ColumnID == "" {
		return NewValidationError("Enter", "INVALID_ENTRY", "lead and column_id are required", ErrInvalidRequest)
	}

	candidates, err := s.persistence.AutomationRepository().AutomationsByColumn(ctx, req.ColumnID)
	if err != nil {
		return fmt.Errorf("failed to load automations for column %s: %w", req.ColumnID, err)
	}

	automation, _ := models.FirstOnEnter(candidates)

	if automation != nil {
		enabled := automation.EnabledActions()

		switch {
		case req.StartActionID == "" && len(enabled) > 1:
			return &StartChoiceError{AutomationID: automation.ID, Candidates: enabled}
		case req.StartActionID != "":
			action := automation.ActionByID(req.StartActionID)
			if action == nil || !action.Enabled {
				return NewValidationError("Enter", "INVALID_START_ACTION",
					fmt.Sprintf("action %q is not an enabled action of automation %s", req.StartActionID, automation.ID),
					ErrInvalidRequest,
				)
			}
		}
	}

	event := events.LeadEnteredColumn{
		BaseEvent: events.BaseEvent{
			ID:        s.bus.GenerateID(),
			Type:      events.LeadEnteredColumnEvent,
			Timestamp: time.Now().UTC(),
		},
		Lead:           req.Lead,
		ColumnID:       req.ColumnID,
		SourceColumnID: req.SourceColumnID,
		StartActionID:  req.StartActionID,
		Variables:      req.Variables,
	}

	err = s.bus.Publish(ctx, req.Lead.ID, event)
	if err != nil {
		return fmt.Errorf("failed to publish lead entry: %w", err)
	}

	return nil
}

// CurrentAction returns the action the lead's run is at, or "" when the lead is idle.
func (s *Lead) CurrentAction(ctx context.Context, leadID string) (string, error) {
	current, err := s.persistence.CurrentActionRepository().CurrentActions(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load current actions: %w", err)
	}

	return current[leadID], nil
}

// Pauses lists the leads parked at manual actions.
func (s *Lead) Pauses(ctx context.Context) ([]*models.PauseState, error) {
	pauses, err := s.persistence.PauseRepository().Pauses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pauses: %w", err)
	}

	return pauses, nil
}

// ResolvePause checks the resolution against the paused automation and publishes it. It returns
// persistence.ErrPauseNotFound when the lead is not paused.
func (s *Lead) ResolvePause(ctx context.Context, leadID string, decision models.Decision, target models.ResumeTarget) error {
	state, err := s.persistence.PauseRepository().PauseByLead(ctx, leadID)
	if err != nil {
		return err
	}

	automation, err := s.persistence.AutomationRepository().AutomationByID(ctx, state.AutomationID)
	if err != nil {
		return fmt.Errorf("failed to load paused automation: %w", err)
	}

	err = flow.ValidateResume(automation, decision, target)
	if err != nil {
		return NewValidationError("ResolvePause", "INVALID_RESOLUTION", err.Error(), ErrInvalidResolution)
	}

	event := events.PauseResolutionRequested{
		BaseEvent: events.BaseEvent{
			ID:        s.bus.GenerateID(),
			Type:      events.PauseResolutionRequestedEvent,
			Timestamp: time.Now().UTC(),
		},
		LeadID:   leadID,
		Decision: decision,
		Resume:   target,
	}

	err = s.bus.Publish(ctx, leadID, event)
	if err != nil {
		return fmt.Errorf("failed to publish pause resolution: %w", err)
	}

	return nil
}

// BatchTransfers lists the batch transfer states.
func (s *Lead) BatchTransfers(ctx context.Context) ([]*models.BatchTransferState, error) {
	states, err := s.persistence.BatchTransferRepository().BatchTransfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch transfers: %w", err)
	}

	return states, nil
}
