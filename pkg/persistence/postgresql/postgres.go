// Package postgresql provides PostgreSQL persistence for automations and resumable run state.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	automations    *AutomationRepository
	pauses         *PauseRepository
	currentActions *CurrentActionRepository
	batches        *BatchTransferRepository
}

// NewPersistence connects to databaseURL, runs migrations and returns the persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return New(database, logger), nil
}

// New wraps an open database without running migrations.
func New(db *sql.DB, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:             db,
		logger:         logger,
		automations:    NewAutomationRepository(db, logger),
		pauses:         NewPauseRepository(db, logger),
		currentActions: NewCurrentActionRepository(db),
		batches:        NewBatchTransferRepository(db, logger),
	}
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) AutomationRepository() persistence.AutomationRepository {
	return p.automations
}

func (p *Persistence) PauseRepository() persistence.PauseRepository {
	return p.pauses
}

func (p *Persistence) CurrentActionRepository() persistence.CurrentActionRepository {
	return p.currentActions
}

func (p *Persistence) BatchTransferRepository() persistence.BatchTransferRepository {
	return p.batches
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
