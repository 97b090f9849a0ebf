// Package file provides file-based persistence for automations and resumable run state.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/leadflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root           string
	automations    *AutomationRepository
	pauses         *PauseRepository
	currentActions *CurrentActionRepository
	batches        *BatchTransferRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		automations:    NewAutomationRepository(cleanRoot),
		pauses:         NewPauseRepository(cleanRoot),
		currentActions: NewCurrentActionRepository(cleanRoot),
		batches:        NewBatchTransferRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) AutomationRepository() persistence.AutomationRepository {
	return fp.automations
}

func (fp *Persistence) PauseRepository() persistence.PauseRepository {
	return fp.pauses
}

func (fp *Persistence) CurrentActionRepository() persistence.CurrentActionRepository {
	return fp.currentActions
}

func (fp *Persistence) BatchTransferRepository() persistence.BatchTransferRepository {
	return fp.batches
}

// validateID validates that the id is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: cannot be empty", persistence.ErrInvalidID)
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func writeJSON(dir, name string, value any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	// Write to a temporary file first so readers never see a partial document.
	target := filepath.Join(dir, name+".json")
	tmp := target + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	return os.Rename(tmp, target)
}

// readJSON decodes dir/name.json into value. It returns false when the file does not exist.
func readJSON(dir, name string, value any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}

	return true, nil
}

// listIDs returns the names of the json documents in dir without extension.
func listIDs(dir string) ([]string, error) {
	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %s: %w", dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func removeJSON(dir, name string) error {
	err := os.Remove(filepath.Join(dir, name+".json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	return nil
}
