package actions

import (
	"context"
	"fmt"

	"github.com/dukex/leadflow/pkg/models"
)

// moveLead changes the lead's column directly. It does not look up the automation of the
// target column; the engine decides what happens after a move.
func (x *Executor) moveLead(ctx context.Context, lead *models.Lead, cfg *models.MoveLeadConfig) (*models.Outcome, error) {
	previous, err := x.leads.SetColumn(lead.ID, cfg.TargetColumnID)
	if err != nil {
		return nil, err
	}

	if previous.Status == cfg.TargetColumnID {
		return nil, nil
	}

	err = x.backend.UpdateLeadStatus(ctx, lead.ID, cfg.TargetColumnID)
	if err != nil {
		x.leads.RevertColumn(previous)

		return nil, fmt.Errorf("failed to move lead %s to %s: %w", lead.ID, cfg.TargetColumnID, err)
	}

	x.note(ctx, lead.ID, fmt.Sprintf("Moved from %s to %s by automation", previous.Status, cfg.TargetColumnID))

	return &models.Outcome{Kind: models.OutcomeMoved, ColumnID: cfg.TargetColumnID}, nil
}

func (x *Executor) transfer(ctx context.Context, lead *models.Lead, cfg *models.TransferCommandConfig) error {
	switch cfg.TransferType {
	case models.TransferFunnel:
		return x.transferFunnel(ctx, lead, cfg)
	case models.TransferOwner:
		return x.transferOwner(ctx, lead, cfg)
	default:
		return fmt.Errorf("%w: transfer type %q", ErrUnsupportedAction, cfg.TransferType)
	}
}

func (x *Executor) transferFunnel(ctx context.Context, lead *models.Lead, cfg *models.TransferCommandConfig) error {
	if x.transferDelay > 0 {
		select {
		case <-x.clock.After(x.transferDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	previous, err := x.leads.SetFunnel(lead.ID, cfg.TargetFunnelID, cfg.TargetColumnID)
	if err != nil {
		return err
	}

	funnel, column := cfg.TargetFunnelID, cfg.TargetColumnID

	err = x.backend.UpdateLead(ctx, lead.ID, models.LeadPatch{FunnelID: &funnel, Status: &column})
	if err != nil {
		x.leads.RevertColumn(previous)

		return fmt.Errorf("failed to transfer lead %s to funnel %s: %w", lead.ID, funnel, err)
	}

	x.note(ctx, lead.ID, fmt.Sprintf("Transferred to funnel %s, column %s", funnel, column))

	return nil
}

func (x *Executor) transferOwner(ctx context.Context, lead *models.Lead, cfg *models.TransferCommandConfig) error {
	previous, err := x.leads.SetAssignee(lead.ID, cfg.NewOwnerID)
	if err != nil {
		return err
	}

	owner := cfg.NewOwnerID

	err = x.backend.UpdateLead(ctx, lead.ID, models.LeadPatch{AssigneeID: &owner})
	if err != nil {
		x.leads.RevertAssignee(previous)

		return fmt.Errorf("failed to reassign lead %s: %w", lead.ID, err)
	}

	x.note(ctx, lead.ID, fmt.Sprintf("Owner changed to %s", owner))

	return nil
}
