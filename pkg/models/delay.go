package models

import "time"

// DelayUnit is the unit of a DelayConfig value.
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// DelayConfig is an amount of time expressed in minutes, hours or days.
type DelayConfig struct {
	Value float64   `json:"value" validate:"gte=0"`
	Unit  DelayUnit `json:"unit"  validate:"omitempty,oneof=minutes hours days"`
}

// Duration converts the configured delay to a time.Duration. An empty unit means minutes.
func (d *DelayConfig) Duration() time.Duration {
	if d == nil || d.Value <= 0 {
		return 0
	}

	minutes := d.Value

	switch d.Unit {
	case DelayUnitHours:
		minutes *= 60
	case DelayUnitDays:
		minutes *= 60 * 24
	}

	return time.Duration(minutes * float64(time.Minute))
}
