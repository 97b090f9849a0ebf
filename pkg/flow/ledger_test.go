package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func manualAction(id string) *models.Action {
	return &models.Action{
		ID:      id,
		Name:    "approve",
		Type:    models.ActionTypeManual,
		Mode:    models.ActionModeManual,
		Enabled: true,
		Config:  &models.ManualConfig{},
	}
}

func pausedFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := newEngineFixture(t,
		automationOf("review", "novo", manualAction("m"), notification("after"), notification("other")),
		automationOf("closing", "fechamento", notification("c1"), notification("c2")),
	)
	f.executor.On("Execute", mock.Anything, mock.Anything).Return(nil, nil)
	f.start(t, nil)

	require.NoError(t, f.enter(t, newLead("L1"), "novo"))

	_, paused := f.engine.Ledger().Get("L1")
	require.True(t, paused)

	return f
}

func TestLedger_IgnoreAndStop(t *testing.T) {
	f := pausedFixture(t)

	resolved, err := f.engine.Ledger().Resolve(t.Context(), "L1", models.DecisionIgnore, models.ResumeTarget{Kind: models.ResumeNone})
	require.NoError(t, err)
	assert.True(t, resolved)

	assert.Empty(t, f.executor.ids())
	assert.Empty(t, f.currentAction("L1"))
	assert.Equal(t, "novo", f.column("L1"))

	_, err = f.store.PauseRepository().PauseByLead(t.Context(), "L1")
	assert.Error(t, err)
}

func TestLedger_ExecuteAndStop(t *testing.T) {
	f := pausedFixture(t)

	resolved, err := f.engine.Ledger().Resolve(t.Context(), "L1", models.DecisionExecute, models.ResumeTarget{})
	require.NoError(t, err)
	assert.True(t, resolved)

	assert.Equal(t, []string{"m"}, f.executor.ids())
}

func TestLedger_IgnoreAndContinueAtAction(t *testing.T) {
	f := pausedFixture(t)

	resolved, err := f.engine.Ledger().Resolve(t.Context(), "L1", models.DecisionIgnore, models.ResumeTarget{Kind: models.ResumeAction, ActionID: "other"})
	require.NoError(t, err)
	assert.True(t, resolved)

	assert.Equal(t, []string{"other"}, f.executor.ids())
}

func TestLedger_ResumeAtStageCascades(t *testing.T) {
	f := pausedFixture(t)
	f.backend.On("UpdateLeadStatus", mock.Anything, "L1", "fechamento").Return(nil).Once()

	resolved, err := f.engine.Ledger().Resolve(t.Context(), "L1", models.DecisionIgnore, models.ResumeTarget{
		Kind:          models.ResumeStage,
		ColumnID:      "fechamento",
		StartActionID: "c2",
	})
	require.NoError(t, err)
	assert.True(t, resolved)

	assert.Equal(t, "fechamento", f.column("L1"))
	assert.Equal(t, []string{"c2"}, f.executor.ids())
	f.backend.AssertExpectations(t)
}

func TestLedger_InvalidTargetKeepsPause(t *testing.T) {
	f := pausedFixture(t)

	tests := []struct {
		name   string
		target models.ResumeTarget
	}{
		{"unknown action", models.ResumeTarget{Kind: models.ResumeAction, ActionID: "nope"}},
		{"manual action", models.ResumeTarget{Kind: models.ResumeAction, ActionID: "m"}},
		{"stage without column", models.ResumeTarget{Kind: models.ResumeStage}},
		{"unknown kind", models.ResumeTarget{Kind: "teleport"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := f.engine.Ledger().Resolve(t.Context(), "L1", models.DecisionIgnore, tt.target)
			require.ErrorIs(t, err, ErrInvalidResumeTarget)
			assert.False(t, resolved)

			_, paused := f.engine.Ledger().Get("L1")
			assert.True(t, paused)
		})
	}
}

func TestLedger_InvalidDecision(t *testing.T) {
	f := pausedFixture(t)

	_, err := f.engine.Ledger().Resolve(t.Context(), "L1", "maybe", models.ResumeTarget{})
	require.ErrorIs(t, err, ErrInvalidDecision)

	_, paused := f.engine.Ledger().Get("L1")
	assert.True(t, paused)
}

func TestLedger_ExecuteFailureStillRemovesPause(t *testing.T) {
	f := newEngineFixture(t, automationOf("review", "novo", manualAction("m"), notification("after")))
	f.executor.On("Execute", mock.Anything, forAction("m")).Return(nil, errors.New("boom"))
	f.start(t, nil)

	require.NoError(t, f.enter(t, newLead("L1"), "novo"))

	resolved, err := f.engine.Ledger().Resolve(t.Context(), "L1", models.DecisionExecute, models.ResumeTarget{Kind: models.ResumeAction, ActionID: "after"})
	require.Error(t, err)
	assert.True(t, resolved)

	assert.Equal(t, []string{"m"}, f.executor.ids())
	assert.Empty(t, f.engine.Ledger().List())
}

func TestLedger_NewPauseOverwritesPrevious(t *testing.T) {
	f := newEngineFixture(t, automationOf("review", "novo", manualAction("m1"), manualAction("m2")))
	f.start(t, nil)

	require.NoError(t, f.enter(t, newLead("L1"), "novo"))

	automation, err := f.store.AutomationRepository().AutomationByID(t.Context(), "review")
	require.NoError(t, err)
	require.NoError(t, f.engine.Ledger().Pause(t.Context(), "L1", automation, "m2"))

	pauses := f.engine.Ledger().List()
	require.Len(t, pauses, 1)
	assert.Equal(t, "m2", pauses[0].ActionID)
}

func TestLedger_EnteringAnotherColumnDropsPause(t *testing.T) {
	f := pausedFixture(t)

	require.NoError(t, f.enter(t, newLead("L1"), "elsewhere"))

	_, paused := f.engine.Ledger().Get("L1")
	assert.False(t, paused)

	_, err := f.store.PauseRepository().PauseByLead(t.Context(), "L1")
	assert.Error(t, err)
}

func TestLedger_Prune(t *testing.T) {
	f := pausedFixture(t)

	assert.Zero(t, f.engine.Ledger().Prune(t.Context()))

	_, err := f.leads.SetColumn("L1", "elsewhere")
	require.NoError(t, err)

	assert.Equal(t, 1, f.engine.Ledger().Prune(t.Context()))
	assert.Empty(t, f.engine.Ledger().List())
}

func TestLedger_Restore(t *testing.T) {
	f := newEngineFixture(t, automationOf("review", "novo", manualAction("m"), notification("after")))
	f.executor.On("Execute", mock.Anything, mock.Anything).Return(nil, nil)

	pausedAt := f.clock.Now().Add(-time.Hour)
	require.NoError(t, f.store.PauseRepository().SavePause(t.Context(), &models.PauseState{
		LeadID:       "L9",
		AutomationID: "review",
		ColumnID:     "novo",
		ActionID:     "m",
		PausedAt:     pausedAt,
	}))

	f.start(t, nil)
	f.leads.Upsert(&models.Lead{ID: "L9", Status: "novo"})

	require.NoError(t, f.engine.Ledger().Restore(t.Context()))

	state, ok := f.engine.Ledger().Get("L9")
	require.True(t, ok)
	assert.Equal(t, "m", state.ActionID)
	assert.True(t, pausedAt.Equal(state.PausedAt))

	resolved, err := f.engine.Ledger().Resolve(t.Context(), "L9", models.DecisionIgnore, models.ResumeTarget{Kind: models.ResumeAction, ActionID: "after"})
	require.NoError(t, err)
	assert.True(t, resolved)
	assert.Equal(t, []string{"after"}, f.executor.ids())
}

func TestLedger_ResolveUnknownLead(t *testing.T) {
	f := newEngineFixture(t)
	f.start(t, nil)

	resolved, err := f.engine.Ledger().Resolve(t.Context(), "ghost", models.DecisionIgnore, models.ResumeTarget{})
	require.NoError(t, err)
	assert.False(t, resolved)
}

// gatedAutomations blocks AutomationByID until release is closed.
type gatedAutomations struct {
	persistence.AutomationRepository

	entered chan struct{}
	release chan struct{}
}

func (g *gatedAutomations) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	g.entered <- struct{}{}
	<-g.release

	return g.AutomationRepository.AutomationByID(ctx, id)
}

func gate(f *engineFixture) *gatedAutomations {
	g := &gatedAutomations{
		AutomationRepository: f.store.AutomationRepository(),
		entered:              make(chan struct{}, 1),
		release:              make(chan struct{}),
	}
	f.engine.automations = g

	return g
}

type resolution struct {
	resolved bool
	err      error
}

func resolveAsync(t *testing.T, f *engineFixture, target models.ResumeTarget) <-chan resolution {
	t.Helper()

	done := make(chan resolution, 1)

	go func() {
		resolved, err := f.engine.Ledger().Resolve(context.Background(), "L1", models.DecisionIgnore, target)
		done <- resolution{resolved: resolved, err: err}
	}()

	return done
}

func TestLedger_ResolveDoesNotBlockReadsWhileLoading(t *testing.T) {
	f := pausedFixture(t)
	g := gate(f)

	done := resolveAsync(t, f, models.ResumeTarget{})
	<-g.entered

	listed := make(chan int, 1)

	go func() {
		listed <- len(f.engine.Ledger().List())
	}()

	select {
	case n := <-listed:
		assert.Equal(t, 1, n)
	case <-time.After(waitFor):
		t.Fatal("ledger stayed locked while the automation was loading")
	}

	close(g.release)

	result := <-done
	require.NoError(t, result.err)
	assert.True(t, result.resolved)
	assert.Empty(t, f.engine.Ledger().List())
}

func TestLedger_ResolveSkipsPauseReplacedWhileLoading(t *testing.T) {
	f := pausedFixture(t)

	automation, err := f.store.AutomationRepository().AutomationByID(t.Context(), "review")
	require.NoError(t, err)

	g := gate(f)

	done := resolveAsync(t, f, models.ResumeTarget{})
	<-g.entered

	f.clock.Advance(time.Minute)
	require.NoError(t, f.engine.Ledger().Pause(t.Context(), "L1", automation, "m"))

	close(g.release)

	result := <-done
	require.NoError(t, result.err)
	assert.False(t, result.resolved)

	pause, paused := f.engine.Ledger().Get("L1")
	require.True(t, paused)
	assert.Equal(t, f.clock.Now(), pause.PausedAt)
}
