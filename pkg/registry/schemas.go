package registry

import (
	"github.com/dukex/leadflow/pkg/models"
)

func delaySchema(description string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": description,
		"properties": map[string]any{
			"value": map[string]any{"type": "number", "minimum": 0},
			"unit":  map[string]any{"type": "string", "enum": []string{"minutes", "hours", "days"}},
		},
		"required": []string{"value"},
	}
}

func flowTargetSchema(description string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": description,
		"properties": map[string]any{
			"kind":            map[string]any{"type": "string", "enum": []string{"action", "stage"}},
			"action_id":       map[string]any{"type": "string"},
			"column_id":       map[string]any{"type": "string"},
			"start_action_id": map[string]any{"type": "string"},
		},
		"required": []string{"kind"},
	}
}

func nonEmpty(description string) map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "description": description}
}

// Native returns the descriptors of every built-in action type.
func Native() []Descriptor {
	return []Descriptor{
		{
			Type:        models.ActionTypeWhatsApp,
			Name:        "WhatsApp message",
			Description: "Sends a templated message and optionally branches on whether the lead replies.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": nonEmpty("Message text. Supports {client_name}, {company_name}, {deadline} and custom variables."),
					"recipient_policy": map[string]any{
						"type":    "string",
						"enum":    []string{"lead_contact", "assigned", "custom", "all_members"},
						"default": "lead_contact",
					},
					"custom_phones": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"variables": map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "string"},
					},
					"wait_for_response": map[string]any{"type": "boolean"},
					"response_timeout_minutes": map[string]any{
						"type":    "integer",
						"minimum": 0,
						"default": models.DefaultResponseTimeoutMinutes,
					},
					"on_response_next":    flowTargetSchema("Where to go when the lead replies in time."),
					"on_no_response_next": flowTargetSchema("Where to go when the wait expires."),
				},
				"required":             []string{"message"},
				"additionalProperties": false,
			},
		},
		{
			Type:        models.ActionTypeTask,
			Name:        "Task",
			Description: "Creates a task for a team member.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       nonEmpty("Task title. Supports placeholders."),
					"description": map[string]any{"type": "string"},
					"priority": map[string]any{
						"type":    "string",
						"enum":    []string{"low", "medium", "high"},
						"default": "medium",
					},
					"assignee_id": map[string]any{"type": "string"},
					"due_in_days": map[string]any{"type": "integer", "minimum": 0},
				},
				"required":             []string{"title"},
				"additionalProperties": false,
			},
		},
		{
			Type:        models.ActionTypeEmail,
			Name:        "E-mail",
			Description: "Records an outgoing e-mail on the lead timeline.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to":      map[string]any{"type": "string"},
					"subject": nonEmpty("Subject. Supports placeholders."),
					"body":    map[string]any{"type": "string"},
				},
				"required":             []string{"subject"},
				"additionalProperties": false,
			},
		},
		{
			Type:        models.ActionTypeNotification,
			Name:        "Notification",
			Description: "Shows a notification to the team.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string"},
					"message": nonEmpty("Notification text. Supports placeholders."),
				},
				"required":             []string{"message"},
				"additionalProperties": false,
			},
		},
		{
			Type:        models.ActionTypeMoveLead,
			Name:        "Move lead",
			Description: "Moves the lead to another column of the board.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_column_id": nonEmpty("Destination column."),
				},
				"required":             []string{"target_column_id"},
				"additionalProperties": false,
			},
		},
		{
			Type:        models.ActionTypeTransferCommand,
			Name:        "Transfer",
			Description: "Moves the lead to another funnel or hands it to another owner.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"transfer_type":    map[string]any{"type": "string", "enum": []string{"funnel", "owner"}},
					"target_funnel_id": map[string]any{"type": "string"},
					"target_column_id": map[string]any{"type": "string"},
					"new_owner_id":     map[string]any{"type": "string"},
				},
				"required": []string{"transfer_type"},
				"oneOf": []map[string]any{
					{
						"properties": map[string]any{"transfer_type": map[string]any{"const": "funnel"}},
						"required":   []string{"target_funnel_id", "target_column_id"},
					},
					{
						"properties": map[string]any{"transfer_type": map[string]any{"const": "owner"}},
						"required":   []string{"new_owner_id"},
					},
				},
				"additionalProperties": false,
			},
		},
		{
			Type:        models.ActionTypeBatchTransfer,
			Name:        "Batch transfer",
			Description: "Moves the leads of this column to another funnel in recurring batches.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target_funnel_id": nonEmpty("Destination funnel."),
					"target_column_id": nonEmpty("Destination column."),
					"batch_size":       map[string]any{"type": "integer", "minimum": 1},
					"interval":         delaySchema("Time between batches. Defaults to one hour."),
					"max_leads":        map[string]any{"type": "integer", "minimum": 0},
				},
				"required":             []string{"target_funnel_id", "target_column_id", "batch_size"},
				"additionalProperties": false,
			},
		},
		{
			Type:        models.ActionTypeManual,
			Name:        "Manual step",
			Description: "Parks the lead until a person decides how the flow continues.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"instructions": map[string]any{"type": "string"},
				},
				"additionalProperties": false,
			},
		},
	}
}

// RegisterNative registers every built-in action type.
func RegisterNative(r *Registry) error {
	for _, descriptor := range Native() {
		if err := r.Register(descriptor); err != nil {
			return err
		}
	}

	return nil
}
