package models

import "time"

// PauseState records a lead parked at a manual action. There is at most one per lead.
type PauseState struct {
	LeadID       string    `json:"lead_id"`
	AutomationID string    `json:"automation_id"`
	ColumnID     string    `json:"column_id"`
	ActionID     string    `json:"action_id"`
	PausedAt     time.Time `json:"paused_at"`
}

// BatchTransferState tracks a recurring funnel-to-funnel transfer.
type BatchTransferState struct {
	ID              string      `json:"id"`
	AutomationID    string      `json:"automation_id"`
	ActionID        string      `json:"action_id"`
	SourceFunnelID  string      `json:"source_funnel_id,omitempty"`
	SourceColumnID  string      `json:"source_column_id"`
	TargetFunnelID  string      `json:"target_funnel_id"`
	TargetColumnID  string      `json:"target_column_id"`
	BatchSize       int         `json:"batch_size"`
	Interval        DelayConfig `json:"interval"`
	Quota           int         `json:"quota"`
	ProcessedCount  int         `json:"processed_count"`
	LastExecutionAt *time.Time  `json:"last_execution_at,omitempty"`
	NextExecutionAt time.Time   `json:"next_execution_at"`
	Active          bool        `json:"active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// BatchTransferID is the key of the state owned by an automation's batch_transfer action.
func BatchTransferID(automationID, actionID string) string {
	return automationID + ":" + actionID
}

// Remaining is the number of leads still allowed by the quota.
func (s *BatchTransferState) Remaining() int {
	if r := s.Quota - s.ProcessedCount; r > 0 {
		return r
	}

	return 0
}

// Due reports whether the next batch should run at now.
func (s *BatchTransferState) Due(now time.Time) bool {
	return s.Active && !s.NextExecutionAt.After(now)
}
