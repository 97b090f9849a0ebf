// Package events defines the events exchanged between the board and the automation worker.
package events

import (
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

type EventType string

// Topic carries every leadflow event.
const Topic = "leadflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// LeadEnteredColumnEvent is published by the board when a lead's column change is confirmed.
	LeadEnteredColumnEvent EventType = "lead.entered_column"

	// PauseResolutionRequestedEvent is published by the API when an operator answers a manual step.
	PauseResolutionRequestedEvent EventType = "pause.resolution_requested"

	// Notification events mirror models.NotificationKind.
	AutomationTriggeredEvent    = EventType(models.NotificationAutomationTriggered)
	LeadMovedEvent              = EventType(models.NotificationLeadMoved)
	LeadPausedEvent             = EventType(models.NotificationLeadPaused)
	LeadResumedEvent            = EventType(models.NotificationLeadResumed)
	ActionFailedEvent           = EventType(models.NotificationActionFailed)
	BatchTransferProgressEvent  = EventType(models.NotificationBatchTransferProgress)
	BatchTransferCompletedEvent = EventType(models.NotificationBatchTransferCompleted)
	NotificationEvent           = EventType(models.NotificationGeneric)
)

// NotificationTypes lists the event types that carry a Notification.
var NotificationTypes = []EventType{
	AutomationTriggeredEvent,
	LeadMovedEvent,
	LeadPausedEvent,
	LeadResumedEvent,
	ActionFailedEvent,
	BatchTransferProgressEvent,
	BatchTransferCompletedEvent,
	NotificationEvent,
}

// IsNotification reports whether events of type t carry a Notification.
func IsNotification(t EventType) bool {
	for _, candidate := range NotificationTypes {
		if candidate == t {
			return true
		}
	}

	return false
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// LeadEnteredColumn asks the worker to run the column's automation for the lead.
type LeadEnteredColumn struct {
	BaseEvent

	Lead           *models.Lead      `json:"lead"`
	ColumnID       string            `json:"column_id"`
	SourceColumnID string            `json:"source_column_id,omitempty"`
	StartActionID  string            `json:"start_action_id,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}

func (e LeadEnteredColumn) GetType() EventType {
	return LeadEnteredColumnEvent
}

// PauseResolutionRequested asks the worker to resolve the pause of a lead.
type PauseResolutionRequested struct {
	BaseEvent

	LeadID   string              `json:"lead_id"`
	Decision models.Decision     `json:"decision"`
	Resume   models.ResumeTarget `json:"resume"`
}

func (e PauseResolutionRequested) GetType() EventType {
	return PauseResolutionRequestedEvent
}

// Notification is a user-visible notification raised by the engine or the batch scheduler.
type Notification struct {
	BaseEvent

	Notification models.Notification `json:"notification"`
}

func (e Notification) GetType() EventType {
	return EventType(e.Notification.Kind)
}
