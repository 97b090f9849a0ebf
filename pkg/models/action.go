package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActionType identifies the variant of an Action.
type ActionType string

const (
	ActionTypeWhatsApp        ActionType = "whatsapp"
	ActionTypeTask            ActionType = "task"
	ActionTypeEmail           ActionType = "email"
	ActionTypeNotification    ActionType = "notification"
	ActionTypeMoveLead        ActionType = "move_lead"
	ActionTypeTransferCommand ActionType = "transfer_command"
	ActionTypeBatchTransfer   ActionType = "batch_transfer"
	ActionTypeManual          ActionType = "manual"
)

// ActionTypes lists every supported variant.
var ActionTypes = []ActionType{
	ActionTypeWhatsApp,
	ActionTypeTask,
	ActionTypeEmail,
	ActionTypeNotification,
	ActionTypeMoveLead,
	ActionTypeTransferCommand,
	ActionTypeBatchTransfer,
	ActionTypeManual,
}

// ActionMode tells whether an action runs by itself or waits for a human.
type ActionMode string

const (
	ActionModeAutomatic ActionMode = "automatic"
	ActionModeManual    ActionMode = "manual"
)

// ErrUnknownActionType is returned when decoding an action with an unsupported type.
var ErrUnknownActionType = errors.New("unknown action type")

// ActionConfig is the variant payload of an Action. The set of implementations is closed.
type ActionConfig interface {
	ActionType() ActionType
	isActionConfig()
}

// Action is one step of an automation.
type Action struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Type        ActionType   `json:"type"                   validate:"required"`
	Mode        ActionMode   `json:"mode"                   validate:"omitempty,oneof=automatic manual"`
	Enabled     bool         `json:"enabled"`
	DelayConfig *DelayConfig `json:"delay_config,omitempty" validate:"omitempty"`
	Next        *FlowTarget  `json:"next,omitempty"         validate:"omitempty"`
	Config      ActionConfig `json:"config"`

	// LegacyDelay is the old bare-number delay in minutes. Cleared by normalization.
	LegacyDelay *float64 `json:"delay,omitempty"`
}

// IsManual reports whether the action parks the lead for a human decision.
func (a *Action) IsManual() bool {
	return a.Mode == ActionModeManual
}

type actionJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Type        ActionType      `json:"type"`
	Mode        ActionMode      `json:"mode,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	DelayConfig *DelayConfig    `json:"delay_config,omitempty"`
	Next        *FlowTarget     `json:"next,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	LegacyDelay *float64        `json:"delay,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	enabled := a.Enabled

	raw := actionJSON{
		ID:          a.ID,
		Name:        a.Name,
		Type:        a.Type,
		Mode:        a.Mode,
		Enabled:     &enabled,
		DelayConfig: a.DelayConfig,
		Next:        a.Next,
		LegacyDelay: a.LegacyDelay,
	}

	if a.Config != nil {
		cfg, err := json.Marshal(a.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s config: %w", a.Type, err)
		}

		raw.Config = cfg
	}

	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler. The config payload is decoded into the struct
// matching the type field. Actions without an enabled field are enabled.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cfg, err := NewActionConfig(raw.Type)
	if err != nil {
		return err
	}

	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		if err := json.Unmarshal(raw.Config, cfg); err != nil {
			return fmt.Errorf("invalid %s config: %w", raw.Type, err)
		}
	}

	*a = Action{
		ID:          raw.ID,
		Name:        raw.Name,
		Type:        raw.Type,
		Mode:        raw.Mode,
		Enabled:     raw.Enabled == nil || *raw.Enabled,
		DelayConfig: raw.DelayConfig,
		Next:        raw.Next,
		Config:      cfg,
		LegacyDelay: raw.LegacyDelay,
	}

	return nil
}

// NewActionConfig returns an empty config for the given action type.
func NewActionConfig(t ActionType) (ActionConfig, error) {
	switch t {
	case ActionTypeWhatsApp:
		return &WhatsAppConfig{}, nil
	case ActionTypeTask:
		return &TaskConfig{}, nil
	case ActionTypeEmail:
		return &EmailConfig{}, nil
	case ActionTypeNotification:
		return &NotificationConfig{}, nil
	case ActionTypeMoveLead:
		return &MoveLeadConfig{}, nil
	case ActionTypeTransferCommand:
		return &TransferCommandConfig{}, nil
	case ActionTypeBatchTransfer:
		return &BatchTransferConfig{}, nil
	case ActionTypeManual:
		return &ManualConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
}
