// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/leadflow/pkg/models"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest         = errors.New("invalid request")
	ErrAutomationNil          = errors.New("automation cannot be nil")
	ErrDuplicateActionID      = errors.New("duplicate action id")
	ErrUnknownActionReference = errors.New("flow target references an unknown action")
	ErrInvalidActionConfig    = errors.New("invalid action config")
	ErrInvalidResolution      = errors.New("invalid pause resolution")

	// Business Logic Conflicts (409 Conflict).
	ErrStartActionRequired = errors.New("start action required")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// StartChoiceError is returned when a lead enters a column whose automation has more than one
// enabled action and the caller did not choose where to start.
type StartChoiceError struct {
	AutomationID string
	Candidates   []*models.Action
}

func (e *StartChoiceError) Error() string {
	return fmt.Sprintf("automation %s has %d enabled actions, choose where to start", e.AutomationID, len(e.Candidates))
}

func (e *StartChoiceError) Unwrap() error {
	return ErrStartActionRequired
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrAutomationNil) ||
		errors.Is(err, ErrDuplicateActionID) ||
		errors.Is(err, ErrUnknownActionReference) ||
		errors.Is(err, ErrInvalidActionConfig) ||
		errors.Is(err, ErrInvalidResolution)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStartActionRequired)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
