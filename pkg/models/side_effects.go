package models

import "time"

// Task is a to-do created for a team member.
type Task struct {
	ID           string       `json:"id"`
	LeadID       string       `json:"lead_id"`
	AutomationID string       `json:"automation_id,omitempty"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Priority     TaskPriority `json:"priority"`
	AssigneeID   string       `json:"assignee_id,omitempty"`
	DueDate      time.Time    `json:"due_date"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Note is an interaction note appended to a lead's timeline.
type Note struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteKindAutomation marks notes written by the automation engine.
const NoteKindAutomation = "automation"

// NotificationKind classifies a user-visible notification.
type NotificationKind string

const (
	NotificationAutomationTriggered    NotificationKind = "automation.triggered"
	NotificationLeadMoved              NotificationKind = "lead.moved"
	NotificationLeadPaused             NotificationKind = "lead.paused"
	NotificationLeadResumed            NotificationKind = "lead.resumed"
	NotificationActionFailed           NotificationKind = "action.failed"
	NotificationBatchTransferProgress  NotificationKind = "batch_transfer.progress"
	NotificationBatchTransferCompleted NotificationKind = "batch_transfer.completed"
	NotificationGeneric                NotificationKind = "notification"
)

// Notification is a toast shown to the user.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	LeadID       string           `json:"lead_id,omitempty"`
	AutomationID string           `json:"automation_id,omitempty"`
	ActionID     string           `json:"action_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// OutcomeKind discriminates an Outcome.
type OutcomeKind string

const (
	OutcomeWhatsApp OutcomeKind = "whatsapp"
	OutcomeMoved    OutcomeKind = "moved"
)

// Outcome is what an executed action reports back to the engine.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// whatsapp
	PrimaryContactID string    `json:"primary_contact_id,omitempty"`
	PrimaryDelivered bool      `json:"primary_delivered,omitempty"`
	SentAt           time.Time `json:"sent_at,omitempty"`

	// moved
	ColumnID string `json:"column_id,omitempty"`
}
