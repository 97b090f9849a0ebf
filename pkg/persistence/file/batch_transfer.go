package file

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// BatchTransferRepository stores one document per batch transfer under batch_transfers/.
type BatchTransferRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewBatchTransferRepository(root string) *BatchTransferRepository {
	return &BatchTransferRepository{dir: filepath.Join(root, "batch_transfers")}
}

// State ids contain a colon, which is not portable in file names.
func batchFileName(id string) string {
	return strings.ReplaceAll(id, ":", "__")
}

func (r *BatchTransferRepository) SaveBatchTransfer(_ context.Context, state *models.BatchTransferState) error {
	name := batchFileName(state.ID)

	err := validateID(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.dir, name, state)
}

func (r *BatchTransferRepository) BatchTransferByID(_ context.Context, id string) (*models.BatchTransferState, error) {
	name := batchFileName(id)

	err := validateID(name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var state models.BatchTransferState

	found, err := readJSON(r.dir, name, &state)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrBatchTransferNotFound
	}

	return &state, nil
}

func (r *BatchTransferRepository) BatchTransfers(_ context.Context) ([]*models.BatchTransferState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, err := listIDs(r.dir)
	if err != nil {
		return nil, err
	}

	states := make([]*models.BatchTransferState, 0, len(names))

	for _, name := range names {
		var state models.BatchTransferState

		found, err := readJSON(r.dir, name, &state)
		if err != nil {
			return nil, err
		}

		if found {
			states = append(states, &state)
		}
	}

	sort.Slice(states, func(i, j int) bool { return states[i].CreatedAt.Before(states[j].CreatedAt) })

	return states, nil
}
