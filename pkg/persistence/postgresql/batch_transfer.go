package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// BatchTransferRepository handles batch_transfers rows.
type BatchTransferRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewBatchTransferRepository(db *sql.DB, logger *slog.Logger) *BatchTransferRepository {
	return &BatchTransferRepository{db: db, logger: logger}
}

const selectBatchTransfers = `
		SELECT
			id
		  , automation_id
		  , action_id
		  , COALESCE(source_funnel_id, '')
		  , source_column_id
		  , target_funnel_id
		  , target_column_id
		  , batch_size
		  , interval
		  , quota
		  , processed_count
		  , last_execution_at
		  , next_execution_at
		  , active
		  , created_at
		  , updated_at
		FROM batch_transfers
`

func (r *BatchTransferRepository) SaveBatchTransfer(ctx context.Context, state *models.BatchTransferState) error {
	interval, err := json.Marshal(state.Interval)
	if err != nil {
		return fmt.Errorf("failed to marshal interval: %w", err)
	}

	query := `
		INSERT INTO batch_transfers (
			id, automation_id, action_id, source_funnel_id, source_column_id, target_funnel_id, target_column_id,
			batch_size, interval, quota, processed_count, last_execution_at, next_execution_at, active, created_at, updated_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			target_funnel_id = EXCLUDED.target_funnel_id,
			target_column_id = EXCLUDED.target_column_id,
			batch_size = EXCLUDED.batch_size,
			interval = EXCLUDED.interval,
			quota = EXCLUDED.quota,
			processed_count = EXCLUDED.processed_count,
			last_execution_at = EXCLUDED.last_execution_at,
			next_execution_at = EXCLUDED.next_execution_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	var lastExecution sql.NullTime
	if state.LastExecutionAt != nil {
		lastExecution = sql.NullTime{Time: *state.LastExecutionAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		state.ID,
		state.AutomationID,
		state.ActionID,
		state.SourceFunnelID,
		state.SourceColumnID,
		state.TargetFunnelID,
		state.TargetColumnID,
		state.BatchSize,
		string(interval),
		state.Quota,
		state.ProcessedCount,
		lastExecution,
		state.NextExecutionAt,
		state.Active,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save batch transfer %s: %w", state.ID, err)
	}

	return nil
}

func (r *BatchTransferRepository) BatchTransferByID(ctx context.Context, id string) (*models.BatchTransferState, error) {
	state, err := scanBatchTransfer(r.db.QueryRowContext(ctx, selectBatchTransfers+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrBatchTransferNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load batch transfer %s: %w", id, err)
	}

	return state, nil
}

func (r *BatchTransferRepository) BatchTransfers(ctx context.Context) ([]*models.BatchTransferState, error) {
	rows, err := r.db.QueryContext(ctx, selectBatchTransfers+" ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query batch transfers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	states := make([]*models.BatchTransferState, 0)

	for rows.Next() {
		state, err := scanBatchTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch transfer: %w", err)
		}

		states = append(states, state)
	}

	return states, rows.Err()
}

func scanBatchTransfer(row scanner) (*models.BatchTransferState, error) {
	var (
		state         models.BatchTransferState
		interval      []byte
		lastExecution sql.NullTime
	)

	err := row.Scan(
		&state.ID,
		&state.AutomationID,
		&state.ActionID,
		&state.SourceFunnelID,
		&state.SourceColumnID,
		&state.TargetFunnelID,
		&state.TargetColumnID,
		&state.BatchSize,
		&interval,
		&state.Quota,
		&state.ProcessedCount,
		&lastExecution,
		&state.NextExecutionAt,
		&state.Active,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastExecution.Valid {
		t := lastExecution.Time
		state.LastExecutionAt = &t
	}

	err = json.Unmarshal(interval, &state.Interval)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal interval: %w", err)
	}

	return &state, nil
}
