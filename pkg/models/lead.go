// Package models defines the domain types of the kanban automation engine.
package models

import "time"

// StatusChange records one visit of a lead to a column.
// Duration is filled in when the lead leaves the column.
type StatusChange struct {
	ColumnID  string        `json:"column_id"`
	EnteredAt time.Time     `json:"entered_at"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Lead is a card on the kanban board.
type Lead struct {
	ID              string         `json:"id"                          validate:"required"`
	Name            string         `json:"name"`
	Company         string         `json:"company,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	Email           string         `json:"email,omitempty"`
	AssigneeID      string         `json:"assignee_id,omitempty"`
	AssigneePhone   string         `json:"assignee_phone,omitempty"`
	FunnelID        string         `json:"funnel_id,omitempty"`
	Status          string         `json:"status"                      validate:"required"`
	CurrentActionID string         `json:"current_action_id,omitempty"`
	Deadline        *time.Time     `json:"deadline,omitempty"`
	StatusHistory   []StatusChange `json:"status_history,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the lead.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}

	c := *l
	if l.Deadline != nil {
		d := *l.Deadline
		c.Deadline = &d
	}

	if l.StatusHistory != nil {
		c.StatusHistory = make([]StatusChange, len(l.StatusHistory))
		copy(c.StatusHistory, l.StatusHistory)
	}

	return &c
}

// LeadPatch is a partial update sent to the CRM backend. Nil fields are left untouched.
type LeadPatch struct {
	Status          *string `json:"status,omitempty"`
	FunnelID        *string `json:"funnel_id,omitempty"`
	AssigneeID      *string `json:"assignee_id,omitempty"`
	CurrentActionID *string `json:"current_action_id,omitempty"`
}

// TeamMember is a user of the CRM account that can receive messages.
type TeamMember struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}
