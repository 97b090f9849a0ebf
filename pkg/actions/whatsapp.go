package actions

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/template"
)

type recipient struct {
	label string
	phone string
}

func (x *Executor) sendWhatsApp(ctx context.Context, req Request, cfg *models.WhatsAppConfig) (*models.Outcome, error) {
	now := x.clock.Now()

	vars := make(map[string]string, len(cfg.Variables)+len(req.Variables))
	maps.Copy(vars, cfg.Variables)
	maps.Copy(vars, req.Variables)

	text, err := template.RenderMessage(cfg.Message, req.Lead, vars, now)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	recipients, err := x.recipients(ctx, req.Lead, cfg)
	if err != nil {
		return nil, err
	}

	if len(recipients) == 0 {
		x.logger.WarnContext(ctx, "No WhatsApp recipient resolved",
			"lead_id", req.Lead.ID,
			"action_id", req.Action.ID,
			"policy", cfg.RecipientPolicy,
		)
		x.note(ctx, req.Lead.ID, "WhatsApp not sent: no recipient with a phone number")

		return nil, nil
	}

	outcome := &models.Outcome{
		Kind:             models.OutcomeWhatsApp,
		PrimaryContactID: recipients[0].phone,
		SentAt:           now,
	}

	for i, r := range recipients {
		err := x.messenger.SendMessage(ctx, r.phone, text, now)
		x.metrics.MessageSent(err == nil)

		if err != nil {
			x.logger.WarnContext(ctx, "WhatsApp send failed", "lead_id", req.Lead.ID, "recipient", r.phone, "error", err)
			x.note(ctx, req.Lead.ID, fmt.Sprintf("Failed to send WhatsApp to %s: %v", r.label, err))

			continue
		}

		x.note(ctx, req.Lead.ID, fmt.Sprintf("WhatsApp sent to %s", r.label))

		if i == 0 {
			outcome.PrimaryDelivered = true
		}
	}

	return outcome, nil
}

// recipients resolves the configured policy into a deduplicated list of phones.
func (x *Executor) recipients(ctx context.Context, lead *models.Lead, cfg *models.WhatsAppConfig) ([]recipient, error) {
	var candidates []recipient

	switch cfg.RecipientPolicy {
	case models.RecipientLeadContact, "":
		candidates = append(candidates, recipient{label: labelOr(lead.Name, lead.Phone), phone: lead.Phone})
	case models.RecipientAssigned:
		phone := lead.AssigneePhone
		label := lead.AssigneeID

		if phone == "" && lead.AssigneeID != "" {
			members, err := x.team.Members(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list team members: %w", err)
			}

			for _, member := range members {
				if member.ID == lead.AssigneeID {
					phone = member.Phone
					label = labelOr(member.Name, member.Phone)
				}
			}
		}

		candidates = append(candidates, recipient{label: labelOr(label, phone), phone: phone})
	case models.RecipientCustom:
		for _, phone := range cfg.CustomPhones {
			candidates = append(candidates, recipient{label: phone, phone: phone})
		}
	case models.RecipientAllMembers:
		members, err := x.team.Members(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list team members: %w", err)
		}

		for _, member := range members {
			candidates = append(candidates, recipient{label: labelOr(member.Name, member.Phone), phone: member.Phone})
		}
	default:
		return nil, fmt.Errorf("unknown recipient policy %q", cfg.RecipientPolicy)
	}

	return dedupe(candidates), nil
}

func dedupe(candidates []recipient) []recipient {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]recipient, 0, len(candidates))

	for _, c := range candidates {
		key := normalizePhone(c.phone)
		if key == "" {
			continue
		}

		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		unique = append(unique, c)
	}

	return unique
}

// normalizePhone keeps digits only, so "+55 (11) 9999-0000" and "5511999990000" match.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}

		return -1
	}, phone)
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}

	return fallback
}

func (x *Executor) render(text string, req Request, now time.Time) (string, error) {
	if text == "" {
		return "", nil
	}

	rendered, err := template.RenderMessage(text, req.Lead, req.Variables, now)
	if err != nil {
		return "", fmt.Errorf("failed to render %q: %w", text, err)
	}

	return rendered, nil
}
