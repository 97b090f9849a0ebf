// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrPauseNotFound indicates the lead is not parked at a manual action.
	ErrPauseNotFound = errors.New("pause not found")

	// ErrBatchTransferNotFound indicates a batch transfer state was not found.
	ErrBatchTransferNotFound = errors.New("batch transfer not found")

	// ErrLeadNotFound indicates a lead is unknown to the store.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid id")
)

// AutomationError wraps automation-related errors with additional context.
type AutomationError struct {
	Op           string // Operation being performed (e.g., "AutomationByID", "SaveAutomation")
	AutomationID string
	Err          error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("%s operation failed for automation %s: %v", e.Op, e.AutomationID, e.Err)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for automation errors.
func (e *AutomationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAutomationError creates a new automation error with context.
func NewAutomationError(op, automationID string, err error) *AutomationError {
	return &AutomationError{
		Op:           op,
		AutomationID: automationID,
		Err:          err,
	}
}

// LeadStateError wraps errors on per-lead run state (pauses, current actions).
type LeadStateError struct {
	Op     string
	LeadID string
	Err    error
}

func (e *LeadStateError) Error() string {
	return fmt.Sprintf("%s operation failed for lead %s: %v", e.Op, e.LeadID, e.Err)
}

func (e *LeadStateError) Unwrap() error {
	return e.Err
}

func (e *LeadStateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewLeadStateError(op, leadID string, err error) *LeadStateError {
	return &LeadStateError{Op: op, LeadID: leadID, Err: err}
}

// IsAutomationNotFound checks if an error indicates an automation was not found.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsPauseNotFound checks if an error indicates no pause exists for a lead.
func IsPauseNotFound(err error) bool {
	return errors.Is(err, ErrPauseNotFound)
}

// IsBatchTransferNotFound checks if an error indicates a batch transfer was not found.
func IsBatchTransferNotFound(err error) bool {
	return errors.Is(err, ErrBatchTransferNotFound)
}
