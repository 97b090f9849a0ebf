package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrAutomationNotFound is returned when an automation is not found.
	ErrAutomationNotFound = persistence.ErrAutomationNotFound
)

type Automation struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

// NewAutomation creates a new automation service.
func NewAutomation(persistence persistence.Persistence, registry *registry.Registry, validator *validator.Validate) *Automation {
	return &Automation{
		persistence: persistence,
		registry:    registry,
		validator:   validator,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Automation) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every automation in stored order.
func (s *Automation) List(ctx context.Context) ([]*models.Automation, error) {
	automations, err := s.persistence.AutomationRepository().Automations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}

	return automations, nil
}

// FetchByID retrieves an automation by its ID.
func (s *Automation) FetchByID(ctx context.Context, id string) (*models.Automation, error) {
	return s.persistence.AutomationRepository().AutomationByID(ctx, id)
}

// Save normalizes, validates and stores an automation. An empty id creates a new automation.
func (s *Automation) Save(ctx context.Context, id string, automation *models.Automation) (*models.Automation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	if id != "" {
		automation.ID = id
	}

	if automation.ID == "" {
		automation.ID = uuid.New().String()
	}

	models.NormalizeAutomation(automation)

	err := s.validate(automation)
	if err != nil {
		return nil, err
	}

	existing, err := s.persistence.AutomationRepository().AutomationByID(ctx, automation.ID)
	switch {
	case err == nil:
		automation.CreatedAt = existing.CreatedAt
	case !persistence.IsAutomationNotFound(err):
		return nil, storageError("failed to load automation", err)
	}

	err = s.persistence.AutomationRepository().SaveAutomation(ctx, automation)
	if err != nil {
		return nil, storageError("failed to save automation", err)
	}

	return automation, nil
}

func storageError(message string, err error) error {
	if errors.Is(err, persistence.ErrInvalidID) {
		return NewValidationError("Save", "INVALID_ID", err.Error(), ErrInvalidRequest)
	}

	return fmt.Errorf("%s: %w", message, err)
}

// Delete removes an automation by its ID.
func (s *Automation) Delete(ctx context.Context, id string) error {
	_, err := s.persistence.AutomationRepository().AutomationByID(ctx, id)
	if err != nil {
		return err
	}

	return s.persistence.AutomationRepository().DeleteAutomation(ctx, id)
}

func (s *Automation) validate(automation *models.Automation) error {
	err := s.validator.StructExcept(automation, "Actions")
	if err != nil {
		return NewValidationError("Save", "INVALID_AUTOMATION", err.Error(), ErrInvalidRequest)
	}

	ids := make(map[string]struct{}, len(automation.Actions))

	for _, action := range automation.Actions {
		if action == nil {
			return NewValidationError("Save", "INVALID_AUTOMATION", "action cannot be null", ErrInvalidRequest)
		}

		if _, dup := ids[action.ID]; dup {
			return NewValidationError("Save", "DUPLICATE_ACTION_ID", "action id "+action.ID+" is used twice", ErrDuplicateActionID)
		}

		ids[action.ID] = struct{}{}

		err = s.validator.Struct(action)
		if err != nil {
			return NewValidationError("Save", "INVALID_ACTION_CONFIG", action.ID+": "+err.Error(), ErrInvalidActionConfig)
		}

		err = s.registry.Validate(action)
		if err != nil {
			return NewValidationError("Save", "INVALID_ACTION_CONFIG", err.Error(), ErrInvalidActionConfig)
		}
	}

	for _, action := range automation.Actions {
		for _, target := range targetsOf(action) {
			if target.Kind != models.TargetKindAction {
				continue
			}

			if _, ok := ids[target.ActionID]; !ok {
				return NewValidationError("Save", "UNKNOWN_ACTION_REFERENCE",
					fmt.Sprintf("action %s points to unknown action %q", action.ID, target.ActionID),
					ErrUnknownActionReference,
				)
			}
		}
	}

	return nil
}

func targetsOf(action *models.Action) []*models.FlowTarget {
	targets := make([]*models.FlowTarget, 0, 3)

	if action.Next != nil {
		targets = append(targets, action.Next)
	}

	if cfg, ok := action.Config.(*models.WhatsAppConfig); ok {
		if cfg.OnResponseNext != nil {
			targets = append(targets, cfg.OnResponseNext)
		}

		if cfg.OnNoResponseNext != nil {
			targets = append(targets, cfg.OnNoResponseNext)
		}
	}

	return targets
}
