package models

import "time"

// TriggerKind is the event an automation reacts to. Only on_enter is executed by the engine.
type TriggerKind string

const (
	TriggerOnEnter     TriggerKind = "on_enter"
	TriggerOnExit      TriggerKind = "on_exit"
	TriggerTimeInStage TriggerKind = "time_in_stage"
	TriggerManual      TriggerKind = "manual"
)

// Automation is an ordered list of actions bound to a column.
type Automation struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"                  validate:"required"`
	ColumnID   string       `json:"column_id"             validate:"required"`
	FunnelID   string       `json:"funnel_id,omitempty"`
	Trigger    TriggerKind  `json:"trigger"               validate:"required,oneof=on_enter on_exit time_in_stage manual"`
	Active     bool         `json:"active"`
	EntryDelay *DelayConfig `json:"entry_delay,omitempty" validate:"omitempty"`
	Actions    []*Action    `json:"actions"               validate:"dive"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// RunsOnEnter reports whether the engine should start this automation when a lead enters its column.
func (a *Automation) RunsOnEnter() bool {
	return a.Active && a.Trigger == TriggerOnEnter
}

// FirstOnEnter picks the automation that runs when a lead enters a column: the first one, in
// stored order, that runs on enter. Later matches are returned as shadowed.
func FirstOnEnter(automations []*Automation) (*Automation, []*Automation) {
	var (
		found    *Automation
		shadowed []*Automation
	)

	for _, automation := range automations {
		if !automation.RunsOnEnter() {
			continue
		}

		if found == nil {
			found = automation

			continue
		}

		shadowed = append(shadowed, automation)
	}

	return found, shadowed
}

// ActionByID returns the action with the given id, or nil.
func (a *Automation) ActionByID(id string) *Action {
	for _, action := range a.Actions {
		if action.ID == id {
			return action
		}
	}

	return nil
}

// EnabledActions returns the enabled actions in declared order.
func (a *Automation) EnabledActions() []*Action {
	enabled := make([]*Action, 0, len(a.Actions))

	for _, action := range a.Actions {
		if action.Enabled {
			enabled = append(enabled, action)
		}
	}

	return enabled
}

// FirstEnabled returns the first enabled action, or nil.
func (a *Automation) FirstEnabled() *Action {
	for _, action := range a.Actions {
		if action.Enabled {
			return action
		}
	}

	return nil
}

// NextEnabledAfter returns the first enabled action declared after the given id, or nil.
func (a *Automation) NextEnabledAfter(id string) *Action {
	found := false

	for _, action := range a.Actions {
		if found && action.Enabled {
			return action
		}

		if action.ID == id {
			found = true
		}
	}

	return nil
}
