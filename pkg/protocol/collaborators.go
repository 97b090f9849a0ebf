// Package protocol defines the external collaborators the automation engine talks to.
package protocol

import (
	"context"
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

// Messenger delivers WhatsApp messages and reports replies.
type Messenger interface {
	SendMessage(ctx context.Context, contactID, text string, at time.Time) error
	HasRepliedSince(ctx context.Context, contactID string, since time.Time) (bool, error)
}

// TaskService creates to-dos for team members.
type TaskService interface {
	CreateTask(ctx context.Context, task *models.Task) error
}

// LeadBackend is the CRM REST backend that owns lead records.
type LeadBackend interface {
	UpdateLeadStatus(ctx context.Context, leadID, columnID string) error
	UpdateLead(ctx context.Context, leadID string, patch models.LeadPatch) error
	AddInteractionNote(ctx context.Context, leadID string, note *models.Note) error
	ListLeads(ctx context.Context) ([]*models.Lead, error)
}

// TeamDirectory lists the team members of the account.
type TeamDirectory interface {
	Members(ctx context.Context) ([]*models.TeamMember, error)
}

// Notifier shows user-visible notifications.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notification models.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, notification models.Notification) error {
	return f(ctx, notification)
}
