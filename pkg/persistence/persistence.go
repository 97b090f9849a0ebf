// Package persistence provides the storage abstraction for automations and resumable run state.
package persistence

import (
	"context"

	"github.com/dukex/leadflow/pkg/models"
)

// AutomationRepository stores automation definitions.
type AutomationRepository interface {
	Automations(ctx context.Context) ([]*models.Automation, error)
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)
	// AutomationsByColumn returns the automations bound to a column in stored order.
	AutomationsByColumn(ctx context.Context, columnID string) ([]*models.Automation, error)
	SaveAutomation(ctx context.Context, automation *models.Automation) error
	DeleteAutomation(ctx context.Context, id string) error
}

// PauseRepository is the durable mirror of the pause ledger.
type PauseRepository interface {
	SavePause(ctx context.Context, state *models.PauseState) error
	PauseByLead(ctx context.Context, leadID string) (*models.PauseState, error)
	DeletePause(ctx context.Context, leadID string) error
	Pauses(ctx context.Context) ([]*models.PauseState, error)
}

// CurrentActionRepository keeps the lead_current_actions map used to resume after a restart.
type CurrentActionRepository interface {
	SetCurrentAction(ctx context.Context, leadID, actionID string) error
	ClearCurrentAction(ctx context.Context, leadID string) error
	CurrentActions(ctx context.Context) (map[string]string, error)
}

// BatchTransferRepository stores batch transfer progress.
type BatchTransferRepository interface {
	SaveBatchTransfer(ctx context.Context, state *models.BatchTransferState) error
	BatchTransferByID(ctx context.Context, id string) (*models.BatchTransferState, error)
	BatchTransfers(ctx context.Context) ([]*models.BatchTransferState, error)
}

type Persistence interface {
	AutomationRepository() AutomationRepository
	PauseRepository() PauseRepository
	CurrentActionRepository() CurrentActionRepository
	BatchTransferRepository() BatchTransferRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
