package file

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// AutomationRepository stores one json document per automation under automations/.
type AutomationRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewAutomationRepository(root string) *AutomationRepository {
	return &AutomationRepository{dir: filepath.Join(root, "automations")}
}

// Automations returns every automation sorted by creation time, then id.
func (r *AutomationRepository) Automations(_ context.Context) ([]*models.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listIDs(r.dir)
	if err != nil {
		return nil, err
	}

	automations := make([]*models.Automation, 0, len(ids))

	for _, id := range ids {
		var automation models.Automation

		found, err := readJSON(r.dir, id, &automation)
		if err != nil {
			return nil, persistence.NewAutomationError("Automations", id, err)
		}

		if found {
			automations = append(automations, models.NormalizeAutomation(&automation))
		}
	}

	sort.SliceStable(automations, func(i, j int) bool {
		if automations[i].CreatedAt.Equal(automations[j].CreatedAt) {
			return automations[i].ID < automations[j].ID
		}

		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})

	return automations, nil
}

func (r *AutomationRepository) AutomationByID(_ context.Context, id string) (*models.Automation, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewAutomationError("AutomationByID", id, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var automation models.Automation

	found, err := readJSON(r.dir, id, &automation)
	if err != nil {
		return nil, persistence.NewAutomationError("AutomationByID", id, err)
	}

	if !found {
		return nil, persistence.NewAutomationError("AutomationByID", id, persistence.ErrAutomationNotFound)
	}

	return models.NormalizeAutomation(&automation), nil
}

func (r *AutomationRepository) AutomationsByColumn(ctx context.Context, columnID string) ([]*models.Automation, error) {
	all, err := r.Automations(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Automation, 0, 1)

	for _, automation := range all {
		if automation.ColumnID == columnID {
			matched = append(matched, automation)
		}
	}

	return matched, nil
}

func (r *AutomationRepository) SaveAutomation(_ context.Context, automation *models.Automation) error {
	err := validateID(automation.ID)
	if err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
	}

	now := time.Now().UTC()
	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	err = writeJSON(r.dir, automation.ID, models.NormalizeAutomation(automation))
	if err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
	}

	return nil
}

func (r *AutomationRepository) DeleteAutomation(_ context.Context, id string) error {
	err := validateID(id)
	if err != nil {
		return persistence.NewAutomationError("DeleteAutomation", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = removeJSON(r.dir, id)
	if err != nil {
		return persistence.NewAutomationError("DeleteAutomation", id, err)
	}

	return nil
}
