package models

// RecipientPolicy selects who receives a WhatsApp message.
type RecipientPolicy string

const (
	RecipientLeadContact RecipientPolicy = "lead_contact"
	RecipientAssigned    RecipientPolicy = "assigned"
	RecipientCustom      RecipientPolicy = "custom"
	RecipientAllMembers  RecipientPolicy = "all_members"
)

// DefaultResponseTimeoutMinutes is used when a WhatsApp action waits for a reply without a timeout.
const DefaultResponseTimeoutMinutes = 1440

type WhatsAppConfig struct {
	Message                string            `json:"message"                             validate:"required"`
	RecipientPolicy        RecipientPolicy   `json:"recipient_policy,omitempty"          validate:"omitempty,oneof=lead_contact assigned custom all_members"`
	CustomPhones           []string          `json:"custom_phones,omitempty"`
	Variables              map[string]string `json:"variables,omitempty"`
	WaitForResponse        bool              `json:"wait_for_response,omitempty"`
	ResponseTimeoutMinutes int               `json:"response_timeout_minutes,omitempty" validate:"gte=0"`
	OnResponseNext         *FlowTarget       `json:"on_response_next,omitempty"`
	OnNoResponseNext       *FlowTarget       `json:"on_no_response_next,omitempty"`

	// ResponseTargetColumnID is the legacy form of OnResponseNext.
	ResponseTargetColumnID string `json:"response_target_column_id,omitempty"`
}

func (*WhatsAppConfig) ActionType() ActionType { return ActionTypeWhatsApp }
func (*WhatsAppConfig) isActionConfig()        {}

// TaskPriority is the priority of a created task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

type TaskConfig struct {
	Title       string       `json:"title"                 validate:"required"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority,omitempty"    validate:"omitempty,oneof=low medium high"`
	AssigneeID  string       `json:"assignee_id,omitempty"`
	DueInDays   int          `json:"due_in_days,omitempty" validate:"gte=0"`
}

func (*TaskConfig) ActionType() ActionType { return ActionTypeTask }
func (*TaskConfig) isActionConfig()        {}

type EmailConfig struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject"      validate:"required"`
	Body    string `json:"body,omitempty"`
}

func (*EmailConfig) ActionType() ActionType { return ActionTypeEmail }
func (*EmailConfig) isActionConfig()        {}

type NotificationConfig struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"         validate:"required"`
}

func (*NotificationConfig) ActionType() ActionType { return ActionTypeNotification }
func (*NotificationConfig) isActionConfig()        {}

type MoveLeadConfig struct {
	TargetColumnID string `json:"target_column_id" validate:"required"`
}

func (*MoveLeadConfig) ActionType() ActionType { return ActionTypeMoveLead }
func (*MoveLeadConfig) isActionConfig()        {}

// TransferType selects what a transfer_command changes.
type TransferType string

const (
	TransferFunnel TransferType = "funnel"
	TransferOwner  TransferType = "owner"
)

type TransferCommandConfig struct {
	TransferType   TransferType `json:"transfer_type"              validate:"required,oneof=funnel owner"`
	TargetFunnelID string       `json:"target_funnel_id,omitempty" validate:"required_if=TransferType funnel"`
	TargetColumnID string       `json:"target_column_id,omitempty" validate:"required_if=TransferType funnel"`
	NewOwnerID     string       `json:"new_owner_id,omitempty"     validate:"required_if=TransferType owner"`
}

func (*TransferCommandConfig) ActionType() ActionType { return ActionTypeTransferCommand }
func (*TransferCommandConfig) isActionConfig()        {}

type BatchTransferConfig struct {
	TargetFunnelID string       `json:"target_funnel_id" validate:"required"`
	TargetColumnID string       `json:"target_column_id" validate:"required"`
	BatchSize      int          `json:"batch_size"       validate:"gt=0"`
	Interval       *DelayConfig `json:"interval,omitempty"`
	MaxLeads       int          `json:"max_leads,omitempty" validate:"gte=0"`

	// LegacyIntervalValue is the old unit-less interval. Cleared by normalization.
	LegacyIntervalValue *float64 `json:"interval_value,omitempty"`
}

func (*BatchTransferConfig) ActionType() ActionType { return ActionTypeBatchTransfer }
func (*BatchTransferConfig) isActionConfig()        {}

type ManualConfig struct {
	Instructions string `json:"instructions,omitempty"`
}

func (*ManualConfig) ActionType() ActionType { return ActionTypeManual }
func (*ManualConfig) isActionConfig()        {}
