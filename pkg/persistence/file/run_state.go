package file

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// PauseRepository stores one document per paused lead under pauses/.
type PauseRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewPauseRepository(root string) *PauseRepository {
	return &PauseRepository{dir: filepath.Join(root, "pauses")}
}

func (r *PauseRepository) SavePause(_ context.Context, state *models.PauseState) error {
	err := validateID(state.LeadID)
	if err != nil {
		return persistence.NewLeadStateError("SavePause", state.LeadID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.dir, state.LeadID, state)
}

func (r *PauseRepository) PauseByLead(_ context.Context, leadID string) (*models.PauseState, error) {
	err := validateID(leadID)
	if err != nil {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var state models.PauseState

	found, err := readJSON(r.dir, leadID, &state)
	if err != nil {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, err)
	}

	if !found {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, persistence.ErrPauseNotFound)
	}

	return &state, nil
}

func (r *PauseRepository) DeletePause(_ context.Context, leadID string) error {
	err := validateID(leadID)
	if err != nil {
		return persistence.NewLeadStateError("DeletePause", leadID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return removeJSON(r.dir, leadID)
}

// Pauses returns every stored pause, oldest first.
func (r *PauseRepository) Pauses(_ context.Context) ([]*models.PauseState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := listIDs(r.dir)
	if err != nil {
		return nil, err
	}

	pauses := make([]*models.PauseState, 0, len(ids))

	for _, id := range ids {
		var state models.PauseState

		found, err := readJSON(r.dir, id, &state)
		if err != nil {
			return nil, err
		}

		if found {
			pauses = append(pauses, &state)
		}
	}

	sort.Slice(pauses, func(i, j int) bool { return pauses[i].PausedAt.Before(pauses[j].PausedAt) })

	return pauses, nil
}

// CurrentActionRepository keeps the whole lead_current_actions map in a single document.
type CurrentActionRepository struct {
	root string
	mu   sync.Mutex
}

const currentActionsDocument = "lead_current_actions"

func NewCurrentActionRepository(root string) *CurrentActionRepository {
	return &CurrentActionRepository{root: root}
}

func (r *CurrentActionRepository) SetCurrentAction(_ context.Context, leadID, actionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load()
	if err != nil {
		return persistence.NewLeadStateError("SetCurrentAction", leadID, err)
	}

	current[leadID] = actionID

	return writeJSON(r.root, currentActionsDocument, current)
}

func (r *CurrentActionRepository) ClearCurrentAction(_ context.Context, leadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load()
	if err != nil {
		return persistence.NewLeadStateError("ClearCurrentAction", leadID, err)
	}

	if _, ok := current[leadID]; !ok {
		return nil
	}

	delete(current, leadID)

	return writeJSON(r.root, currentActionsDocument, current)
}

func (r *CurrentActionRepository) CurrentActions(_ context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

func (r *CurrentActionRepository) load() (map[string]string, error) {
	current := make(map[string]string)

	_, err := readJSON(r.root, currentActionsDocument, &current)
	if err != nil {
		return nil, err
	}

	return current, nil
}
