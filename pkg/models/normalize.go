package models

import "strconv"

// NormalizeAutomation rewrites legacy action data into the canonical form in place.
// It is run once when automations are loaded or saved, so the engine only sees canonical data.
func NormalizeAutomation(a *Automation) *Automation {
	if a == nil {
		return nil
	}

	if a.Trigger == "" {
		a.Trigger = TriggerOnEnter
	}

	if a.EntryDelay != nil && a.EntryDelay.Unit == "" {
		a.EntryDelay.Unit = DelayUnitMinutes
	}

	for i, action := range a.Actions {
		if action == nil {
			continue
		}

		normalizeAction(i, action)
	}

	return a
}

func normalizeAction(index int, action *Action) {
	if action.ID == "" {
		action.ID = "legacy_" + strconv.Itoa(index)
	}

	if action.Config == nil {
		if cfg, err := NewActionConfig(action.Type); err == nil {
			action.Config = cfg
		}
	}

	if action.Mode == "" {
		action.Mode = ActionModeAutomatic
		if action.Type == ActionTypeManual {
			action.Mode = ActionModeManual
		}
	}

	if action.LegacyDelay != nil {
		if action.DelayConfig == nil && *action.LegacyDelay > 0 {
			action.DelayConfig = &DelayConfig{Value: *action.LegacyDelay, Unit: DelayUnitMinutes}
		}

		action.LegacyDelay = nil
	}

	if action.DelayConfig != nil && action.DelayConfig.Unit == "" {
		action.DelayConfig.Unit = DelayUnitMinutes
	}

	switch cfg := action.Config.(type) {
	case *WhatsAppConfig:
		if cfg.RecipientPolicy == "" {
			cfg.RecipientPolicy = RecipientLeadContact
		}

		if cfg.ResponseTargetColumnID != "" {
			if cfg.OnResponseNext == nil {
				cfg.OnResponseNext = StageTarget(cfg.ResponseTargetColumnID, "")
			}

			cfg.ResponseTargetColumnID = ""
		}
	case *TaskConfig:
		if cfg.Priority == "" {
			cfg.Priority = TaskPriorityMedium
		}
	case *BatchTransferConfig:
		if cfg.LegacyIntervalValue != nil {
			if cfg.Interval == nil {
				cfg.Interval = &DelayConfig{Value: *cfg.LegacyIntervalValue, Unit: DelayUnitMinutes}
			}

			cfg.LegacyIntervalValue = nil
		}

		if cfg.Interval != nil && cfg.Interval.Unit == "" {
			cfg.Interval.Unit = DelayUnitMinutes
		}
	}
}
