package models

// TargetKind discriminates a FlowTarget.
type TargetKind string

const (
	TargetKindAction TargetKind = "action"
	TargetKindStage  TargetKind = "stage"
)

// FlowTarget is the continuation after an action: another action of the same automation,
// or a move to a column. A nil *FlowTarget ends the run.
type FlowTarget struct {
	Kind          TargetKind `json:"kind"                      validate:"required,oneof=action stage"`
	ActionID      string     `json:"action_id,omitempty"       validate:"required_if=Kind action"`
	ColumnID      string     `json:"column_id,omitempty"       validate:"required_if=Kind stage"`
	StartActionID string     `json:"start_action_id,omitempty"`
}

// ActionTarget points to the action with the given id.
func ActionTarget(actionID string) *FlowTarget {
	return &FlowTarget{Kind: TargetKindAction, ActionID: actionID}
}

// StageTarget points to a column, optionally entering its automation at startActionID.
func StageTarget(columnID, startActionID string) *FlowTarget {
	return &FlowTarget{Kind: TargetKindStage, ColumnID: columnID, StartActionID: startActionID}
}
