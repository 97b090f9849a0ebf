package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// AutomationRepository handles automation-related database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

const selectAutomations = `
		SELECT
			id
		  , name
		  , column_id
		  , COALESCE(funnel_id, '')
		  , trigger
		  , active
		  , entry_delay
		  , actions
		  , created_at
		  , updated_at
		FROM automations
`

func (r *AutomationRepository) Automations(ctx context.Context) ([]*models.Automation, error) {
	return r.query(ctx, selectAutomations+" ORDER BY created_at, id")
}

func (r *AutomationRepository) AutomationsByColumn(ctx context.Context, columnID string) ([]*models.Automation, error) {
	return r.query(ctx, selectAutomations+" WHERE column_id = $1 ORDER BY created_at, id", columnID)
}

func (r *AutomationRepository) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	row := r.db.QueryRowContext(ctx, selectAutomations+" WHERE id = $1", id)

	automation, err := scanAutomation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewAutomationError("AutomationByID", id, persistence.ErrAutomationNotFound)
	}

	if err != nil {
		return nil, persistence.NewAutomationError("AutomationByID", id, err)
	}

	return automation, nil
}

func (r *AutomationRepository) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()
	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now
	models.NormalizeAutomation(automation)

	actions, err := json.Marshal(automation.Actions)
	if err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, fmt.Errorf("failed to marshal actions: %w", err))
	}

	var entryDelay sql.NullString
	if automation.EntryDelay != nil {
		data, err := json.Marshal(automation.EntryDelay)
		if err != nil {
			return persistence.NewAutomationError("SaveAutomation", automation.ID, fmt.Errorf("failed to marshal entry delay: %w", err))
		}

		entryDelay = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO automations (id, name, column_id, funnel_id, trigger, active, entry_delay, actions, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			column_id = EXCLUDED.column_id,
			funnel_id = EXCLUDED.funnel_id,
			trigger = EXCLUDED.trigger,
			active = EXCLUDED.active,
			entry_delay = EXCLUDED.entry_delay,
			actions = EXCLUDED.actions,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.Name,
		automation.ColumnID,
		automation.FunnelID,
		string(automation.Trigger),
		automation.Active,
		entryDelay,
		string(actions),
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return persistence.NewAutomationError("SaveAutomation", automation.ID, err)
	}

	return nil
}

func (r *AutomationRepository) DeleteAutomation(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM automations WHERE id = $1", id)
	if err != nil {
		return persistence.NewAutomationError("DeleteAutomation", id, err)
	}

	return nil
}

func (r *AutomationRepository) query(ctx context.Context, query string, args ...any) ([]*models.Automation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row scanner) (*models.Automation, error) {
	var (
		automation models.Automation
		trigger    string
		entryDelay []byte
		actions    []byte
	)

	err := row.Scan(
		&automation.ID,
		&automation.Name,
		&automation.ColumnID,
		&automation.FunnelID,
		&trigger,
		&automation.Active,
		&entryDelay,
		&actions,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	automation.Trigger = models.TriggerKind(trigger)

	if len(entryDelay) > 0 {
		automation.EntryDelay = &models.DelayConfig{}

		err = json.Unmarshal(entryDelay, automation.EntryDelay)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry delay: %w", err)
		}
	}

	err = json.Unmarshal(actions, &automation.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	return models.NormalizeAutomation(&automation), nil
}
