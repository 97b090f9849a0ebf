// Package registry describes the supported action types and validates their configuration.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrActionTypeNotRegistered = errors.New("action type not registered")
	ErrInvalidActionConfig     = errors.New("invalid action config")
)

// Descriptor is the metadata the editor needs to render an action type.
type Descriptor struct {
	Type        models.ActionType `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Schema      map[string]any    `json:"schema"`
}

type Registry struct {
	logger      *slog.Logger
	mu          sync.RWMutex
	descriptors map[models.ActionType]Descriptor
	schemas     map[models.ActionType]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:      log.With("module", "registry"),
		descriptors: make(map[models.ActionType]Descriptor),
		schemas:     make(map[models.ActionType]*gojsonschema.Schema),
	}
}

// Register compiles the descriptor schema and stores it, replacing any previous descriptor of the type.
func (r *Registry) Register(descriptor Descriptor) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(descriptor.Schema))
	if err != nil {
		return fmt.Errorf("failed to compile schema of %s: %w", descriptor.Type, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.descriptors[descriptor.Type] = descriptor
	r.schemas[descriptor.Type] = schema

	r.logger.Debug("Registered action type", "type", descriptor.Type)

	return nil
}

func (r *Registry) Descriptor(actionType models.ActionType) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptor, ok := r.descriptors[actionType]

	return descriptor, ok
}

// Descriptors returns the registered descriptors in the canonical action type order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.descriptors))

	for _, actionType := range models.ActionTypes {
		if descriptor, ok := r.descriptors[actionType]; ok {
			descriptors = append(descriptors, descriptor)
		}
	}

	return descriptors
}

// Validate checks the action config against the schema of its type.
func (r *Registry) Validate(action *models.Action) error {
	r.mu.RLock()
	schema, ok := r.schemas[action.Type]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrActionTypeNotRegistered, action.Type)
	}

	config := []byte("{}")

	if action.Config != nil {
		data, err := json.Marshal(action.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of action %s: %w", action.ID, err)
		}

		config = data
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(config))
	if err != nil {
		return fmt.Errorf("failed to validate action %s: %w", action.ID, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: action %s: %s", ErrInvalidActionConfig, action.ID, strings.Join(messages, "; "))
	}

	return nil
}

// HealthCheck reports whether every action type has a descriptor.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string

	for _, actionType := range models.ActionTypes {
		if _, ok := r.descriptors[actionType]; !ok {
			missing = append(missing, string(actionType))
		}
	}

	if len(missing) > 0 {
		return "Missing action types: " + strings.Join(missing, ", "), false
	}

	return "Registry is healthy", true
}
