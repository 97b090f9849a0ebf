package postgresql

import (
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPersistence(t *testing.T) (*Persistence, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return New(db, slog.Default()), mock
}

var automationColumns = []string{
	"id", "name", "column_id", "funnel_id", "trigger", "active", "entry_delay", "actions", "created_at", "updated_at",
}

func TestAutomationRepository_AutomationByID(t *testing.T) {
	p, mock := newMockPersistence(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM automations\\s+WHERE id = \\$1").
		WithArgs("auto-1").
		WillReturnRows(sqlmock.NewRows(automationColumns).AddRow(
			"auto-1", "Welcome", "new", "", "on_enter", true,
			[]byte(`{"value":2,"unit":"hours"}`),
			[]byte(`[{"id":"a1","type":"whatsapp","delay":5,"config":{"message":"hi"}},{"type":"manual"}]`),
			now, now,
		))

	automation, err := p.AutomationRepository().AutomationByID(t.Context(), "auto-1")
	require.NoError(t, err)

	assert.Equal(t, models.TriggerOnEnter, automation.Trigger)
	assert.Equal(t, 2*time.Hour, automation.EntryDelay.Duration())
	require.Len(t, automation.Actions, 2)
	assert.Equal(t, 5*time.Minute, automation.Actions[0].DelayConfig.Duration())
	assert.Equal(t, "legacy_1", automation.Actions[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomationRepository_AutomationByID_NotFound(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectQuery("FROM automations").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := p.AutomationRepository().AutomationByID(t.Context(), "missing")
	assert.True(t, persistence.IsAutomationNotFound(err))
}

func TestAutomationRepository_AutomationsByColumn(t *testing.T) {
	p, mock := newMockPersistence(t)
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE column_id = \\$1 ORDER BY created_at, id").
		WithArgs("new").
		WillReturnRows(sqlmock.NewRows(automationColumns).
			AddRow("first", "First", "new", "", "on_enter", true, nil, []byte(`[]`), now, now).
			AddRow("second", "Second", "new", "f1", "on_exit", false, nil, []byte(`[]`), now, now))

	automations, err := p.AutomationRepository().AutomationsByColumn(t.Context(), "new")
	require.NoError(t, err)
	require.Len(t, automations, 2)
	assert.Equal(t, "first", automations[0].ID)
	assert.Nil(t, automations[0].EntryDelay)
	assert.Equal(t, "f1", automations[1].FunnelID)
	assert.False(t, automations[1].RunsOnEnter())
}

func TestAutomationRepository_SaveAutomation(t *testing.T) {
	p, mock := newMockPersistence(t)

	automation := &models.Automation{
		ID:       "auto-1",
		Name:     "Welcome",
		ColumnID: "new",
		Trigger:  models.TriggerOnEnter,
		Active:   true,
		Actions:  []*models.Action{{Type: models.ActionTypeManual, Enabled: true}},
	}

	mock.ExpectExec("INSERT INTO automations").
		WithArgs("auto-1", "Welcome", "new", "", "on_enter", true, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.AutomationRepository().SaveAutomation(t.Context(), automation))
	assert.Equal(t, "legacy_0", automation.Actions[0].ID)
	assert.False(t, automation.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPauseRepository_SaveAndDelete(t *testing.T) {
	p, mock := newMockPersistence(t)
	now := time.Now().UTC()
	state := &models.PauseState{LeadID: "l1", AutomationID: "auto-1", ColumnID: "new", ActionID: "m1", PausedAt: now}

	mock.ExpectExec("INSERT INTO pause_states").
		WithArgs("l1", "auto-1", "new", "m1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM pause_states WHERE lead_id = \\$1").
		WithArgs("l1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := p.PauseRepository()
	require.NoError(t, repo.SavePause(t.Context(), state))
	require.NoError(t, repo.DeletePause(t.Context(), "l1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPauseRepository_PauseByLead_NotFound(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectQuery("FROM pause_states WHERE lead_id").WithArgs("l9").WillReturnError(sql.ErrNoRows)

	_, err := p.PauseRepository().PauseByLead(t.Context(), "l9")
	assert.True(t, persistence.IsPauseNotFound(err))
}

func TestCurrentActionRepository(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectExec("INSERT INTO lead_current_actions").WithArgs("l1", "a1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT lead_id, action_id FROM lead_current_actions").
		WillReturnRows(sqlmock.NewRows([]string{"lead_id", "action_id"}).AddRow("l1", "a1").AddRow("l2", "b"))
	mock.ExpectExec("DELETE FROM lead_current_actions").WithArgs("l2").WillReturnResult(sqlmock.NewResult(0, 1))

	repo := p.CurrentActionRepository()
	require.NoError(t, repo.SetCurrentAction(t.Context(), "l1", "a1"))

	current, err := repo.CurrentActions(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"l1": "a1", "l2": "b"}, current)

	require.NoError(t, repo.ClearCurrentAction(t.Context(), "l2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchTransferRepository_RoundTrip(t *testing.T) {
	p, mock := newMockPersistence(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	state := &models.BatchTransferState{
		ID:              "auto-1:batch",
		AutomationID:    "auto-1",
		ActionID:        "batch",
		SourceColumnID:  "new",
		TargetFunnelID:  "f2",
		TargetColumnID:  "c2",
		BatchSize:       3,
		Interval:        models.DelayConfig{Value: 1, Unit: models.DelayUnitHours},
		Quota:           9,
		NextExecutionAt: now,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mock.ExpectExec("INSERT INTO batch_transfers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM batch_transfers\\s+WHERE id = \\$1").
		WithArgs("auto-1:batch").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "automation_id", "action_id", "source_funnel_id", "source_column_id", "target_funnel_id",
			"target_column_id", "batch_size", "interval", "quota", "processed_count", "last_execution_at",
			"next_execution_at", "active", "created_at", "updated_at",
		}).AddRow(
			"auto-1:batch", "auto-1", "batch", "", "new", "f2", "c2", 3,
			[]byte(`{"value":1,"unit":"hours"}`), 9, 3, now, now.Add(time.Hour), true, now, now,
		))

	repo := p.BatchTransferRepository()
	require.NoError(t, repo.SaveBatchTransfer(t.Context(), state))

	loaded, err := repo.BatchTransferByID(t.Context(), "auto-1:batch")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.ProcessedCount)
	assert.Equal(t, time.Hour, loaded.Interval.Duration())
	require.NotNil(t, loaded.LastExecutionAt)
	assert.Equal(t, now, *loaded.LastExecutionAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
