package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// PauseRepository mirrors the pause ledger in the pause_states table.
type PauseRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPauseRepository(db *sql.DB, logger *slog.Logger) *PauseRepository {
	return &PauseRepository{db: db, logger: logger}
}

func (r *PauseRepository) SavePause(ctx context.Context, state *models.PauseState) error {
	query := `
		INSERT INTO pause_states (lead_id, automation_id, column_id, action_id, paused_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lead_id) DO UPDATE SET
			automation_id = EXCLUDED.automation_id,
			column_id = EXCLUDED.column_id,
			action_id = EXCLUDED.action_id,
			paused_at = EXCLUDED.paused_at
	`

	_, err := r.db.ExecContext(ctx, query, state.LeadID, state.AutomationID, state.ColumnID, state.ActionID, state.PausedAt)
	if err != nil {
		return persistence.NewLeadStateError("SavePause", state.LeadID, err)
	}

	return nil
}

func (r *PauseRepository) PauseByLead(ctx context.Context, leadID string) (*models.PauseState, error) {
	var state models.PauseState

	err := r.db.QueryRowContext(ctx,
		"SELECT lead_id, automation_id, column_id, action_id, paused_at FROM pause_states WHERE lead_id = $1",
		leadID,
	).Scan(&state.LeadID, &state.AutomationID, &state.ColumnID, &state.ActionID, &state.PausedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, persistence.ErrPauseNotFound)
	}

	if err != nil {
		return nil, persistence.NewLeadStateError("PauseByLead", leadID, err)
	}

	return &state, nil
}

func (r *PauseRepository) DeletePause(ctx context.Context, leadID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM pause_states WHERE lead_id = $1", leadID)
	if err != nil {
		return persistence.NewLeadStateError("DeletePause", leadID, err)
	}

	return nil
}

func (r *PauseRepository) Pauses(ctx context.Context) ([]*models.PauseState, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT lead_id, automation_id, column_id, action_id, paused_at FROM pause_states ORDER BY paused_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query pauses: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	pauses := make([]*models.PauseState, 0)

	for rows.Next() {
		var state models.PauseState

		err := rows.Scan(&state.LeadID, &state.AutomationID, &state.ColumnID, &state.ActionID, &state.PausedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pause: %w", err)
		}

		pauses = append(pauses, &state)
	}

	return pauses, rows.Err()
}

// CurrentActionRepository stores the lead_current_actions map.
type CurrentActionRepository struct {
	db *sql.DB
}

func NewCurrentActionRepository(db *sql.DB) *CurrentActionRepository {
	return &CurrentActionRepository{db: db}
}

func (r *CurrentActionRepository) SetCurrentAction(ctx context.Context, leadID, actionID string) error {
	query := `
		INSERT INTO lead_current_actions (lead_id, action_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (lead_id) DO UPDATE SET action_id = EXCLUDED.action_id, updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, leadID, actionID)
	if err != nil {
		return persistence.NewLeadStateError("SetCurrentAction", leadID, err)
	}

	return nil
}

func (r *CurrentActionRepository) ClearCurrentAction(ctx context.Context, leadID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM lead_current_actions WHERE lead_id = $1", leadID)
	if err != nil {
		return persistence.NewLeadStateError("ClearCurrentAction", leadID, err)
	}

	return nil
}

func (r *CurrentActionRepository) CurrentActions(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT lead_id, action_id FROM lead_current_actions")
	if err != nil {
		return nil, fmt.Errorf("failed to query current actions: %w", err)
	}

	defer func() { _ = rows.Close() }()

	current := make(map[string]string)

	for rows.Next() {
		var leadID, actionID string

		err := rows.Scan(&leadID, &actionID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan current action: %w", err)
		}

		current[leadID] = actionID
	}

	return current, rows.Err()
}
