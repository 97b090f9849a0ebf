package models

// Decision is the operator's answer to a paused manual action.
type Decision string

const (
	DecisionExecute Decision = "execute"
	DecisionIgnore  Decision = "ignore"
)

// ResumeKind says where a resolved lead goes next.
type ResumeKind string

const (
	ResumeNone   ResumeKind = "none"
	ResumeAction ResumeKind = "action"
	ResumeStage  ResumeKind = "stage"
)

// ResumeTarget is the continuation chosen when resolving a pause.
type ResumeTarget struct {
	Kind          ResumeKind `json:"kind" validate:"omitempty,oneof=none action stage"`
	ActionID      string     `json:"action_id,omitempty"`
	ColumnID      string     `json:"column_id,omitempty"`
	StartActionID string     `json:"start_action_id,omitempty"`
}
