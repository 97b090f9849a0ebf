package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukex/leadflow/pkg/actions"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
)

// Ledger tracks leads parked at manual actions. The in-memory map is authoritative while the
// process runs and is mirrored to the durable PauseRepository.
type Ledger struct {
	engine  *Engine
	durable persistence.PauseRepository
	logger  *slog.Logger

	mu     sync.Mutex
	pauses map[string]*models.PauseState
}

func newLedger(engine *Engine, durable persistence.PauseRepository) *Ledger {
	return &Ledger{
		engine:  engine,
		durable: durable,
		logger:  engine.logger.With("component", "ledger"),
		pauses:  make(map[string]*models.PauseState),
	}
}

// Pause parks the lead at actionID. A previous pause of the same lead is overwritten.
func (l *Ledger) Pause(ctx context.Context, leadID string, automation *models.Automation, actionID string) error {
	l.engine.cancelTimer(leadID)

	state := &models.PauseState{
		LeadID:       leadID,
		AutomationID: automation.ID,
		ColumnID:     automation.ColumnID,
		ActionID:     actionID,
		PausedAt:     l.engine.clock.Now(),
	}

	l.mu.Lock()
	l.pauses[leadID] = state
	l.mu.Unlock()

	l.engine.setCurrentAction(ctx, leadID, actionID)
	l.engine.metrics.LeadPaused()

	if l.durable != nil {
		err := l.durable.SavePause(ctx, state)
		if err != nil {
			l.logger.WarnContext(ctx, "Failed to persist pause", "lead_id", leadID, "error", err)
		}
	}

	l.logger.InfoContext(ctx, "Lead paused at manual action",
		"lead_id", leadID,
		"automation_id", automation.ID,
		"action_id", actionID,
	)

	label := actionID
	if action := automation.ActionByID(actionID); action != nil {
		label = actionLabel(action)
	}

	l.engine.raise(ctx, models.Notification{
		Kind:         models.NotificationLeadPaused,
		Title:        automation.Name,
		Message:      fmt.Sprintf("Waiting for a decision on %q", label),
		LeadID:       leadID,
		AutomationID: automation.ID,
		ActionID:     actionID,
	})

	return nil
}

// Get returns the pause of a lead.
func (l *Ledger) Get(leadID string) (*models.PauseState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.pauses[leadID]
	if !ok {
		return nil, false
	}

	clone := *state

	return &clone, true
}

// List returns every pause ordered by the time it was created.
func (l *Ledger) List() []*models.PauseState {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := make([]*models.PauseState, 0, len(l.pauses))
	for _, state := range l.pauses {
		clone := *state
		list = append(list, &clone)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].PausedAt.Equal(list[j].PausedAt) {
			return list[i].LeadID < list[j].LeadID
		}

		return list[i].PausedAt.Before(list[j].PausedAt)
	})

	return list
}

// Resolve answers the pause of a lead. It reports false when the lead has no pause, which makes a
// second resolution a no-op. The pause is removed before the parked action runs or the flow
// resumes.
func (l *Ledger) Resolve(ctx context.Context, leadID string, decision models.Decision, target models.ResumeTarget) (bool, error) {
	if decision != models.DecisionExecute && decision != models.DecisionIgnore {
		return false, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	l.mu.Lock()
	state, ok := l.pauses[leadID]
	l.mu.Unlock()

	if !ok {
		return false, nil
	}

	automation, err := l.engine.automations.AutomationByID(ctx, state.AutomationID)
	if err != nil {
		return false, fmt.Errorf("failed to load automation %s: %w", state.AutomationID, err)
	}

	err = ValidateResume(automation, decision, target)
	if err != nil {
		return false, err
	}

	// The pause may have been answered or replaced while the automation was loading.
	l.mu.Lock()
	if l.pauses[leadID] != state {
		l.mu.Unlock()

		return false, nil
	}

	delete(l.pauses, leadID)
	l.mu.Unlock()

	l.forget(ctx, leadID)
	l.engine.metrics.LeadResumed(string(decision))

	l.logger.InfoContext(ctx, "Pause resolved",
		"lead_id", leadID,
		"decision", decision,
		"resume", target.Kind,
	)

	if decision == models.DecisionExecute {
		err = l.executeParked(ctx, automation, state)
		if err != nil {
			l.engine.clearCurrentAction(ctx, leadID)

			return true, err
		}
	}

	l.engine.raise(ctx, models.Notification{
		Kind:         models.NotificationLeadResumed,
		Title:        automation.Name,
		Message:      fmt.Sprintf("Manual step %s: %s", decision, resumeLabel(target)),
		LeadID:       leadID,
		AutomationID: automation.ID,
		ActionID:     state.ActionID,
	})

	switch target.Kind {
	case models.ResumeAction:
		return true, l.engine.startRun(ctx, automation, leadID, target.ActionID, nil, 0)
	case models.ResumeStage:
		return true, l.engine.MoveToStage(ctx, leadID, target.ColumnID, target.StartActionID)
	default:
		l.engine.bumpToken(leadID)
		l.engine.clearCurrentAction(ctx, leadID)

		return true, nil
	}
}

func (l *Ledger) executeParked(ctx context.Context, automation *models.Automation, state *models.PauseState) error {
	action := automation.ActionByID(state.ActionID)
	if action == nil {
		return fmt.Errorf("%w: action %s no longer exists", ErrInvalidResumeTarget, state.ActionID)
	}

	lead, ok := l.engine.leads.Get(state.LeadID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLead, state.LeadID)
	}

	_, err := l.engine.executor.Execute(ctx, actions.Request{
		Lead:       lead,
		Automation: automation,
		Action:     action,
	})
	if err != nil {
		l.engine.raise(ctx, models.Notification{
			Kind:         models.NotificationActionFailed,
			Title:        automation.Name,
			Message:      fmt.Sprintf("Action %q failed: %v", actionLabel(action), err),
			LeadID:       state.LeadID,
			AutomationID: automation.ID,
			ActionID:     action.ID,
		})

		return fmt.Errorf("parked action %s failed: %w", action.ID, err)
	}

	return nil
}

// ValidateResume checks a resolution against the paused automation without applying it.
func ValidateResume(automation *models.Automation, decision models.Decision, target models.ResumeTarget) error {
	if decision != models.DecisionExecute && decision != models.DecisionIgnore {
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	switch target.Kind {
	case "", models.ResumeNone:
		return nil
	case models.ResumeAction:
		action := automation.ActionByID(target.ActionID)
		if action == nil || !action.Enabled || action.IsManual() {
			return fmt.Errorf("%w: action %q is not an enabled automatic action", ErrInvalidResumeTarget, target.ActionID)
		}

		return nil
	case models.ResumeStage:
		if target.ColumnID == "" {
			return fmt.Errorf("%w: stage target without column", ErrInvalidResumeTarget)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResumeTarget, target.Kind)
	}
}

func resumeLabel(target models.ResumeTarget) string {
	switch target.Kind {
	case models.ResumeAction:
		return "continue at " + target.ActionID
	case models.ResumeStage:
		return "move to " + target.ColumnID
	default:
		return "stop"
	}
}

// Prune drops the pauses of leads that are no longer in the paused automation's column.
func (l *Ledger) Prune(ctx context.Context) int {
	l.mu.Lock()

	stale := make([]string, 0)

	for leadID, state := range l.pauses {
		column, ok := l.engine.leads.Column(leadID)
		if ok && column == state.ColumnID {
			continue
		}

		delete(l.pauses, leadID)
		stale = append(stale, leadID)
	}
	l.mu.Unlock()

	for _, leadID := range stale {
		l.forget(ctx, leadID)
	}

	if len(stale) > 0 {
		l.logger.InfoContext(ctx, "Pruned stale pauses", "count", len(stale))
	}

	return len(stale)
}

// Restore loads the durable pauses into memory.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.durable == nil {
		return nil
	}

	states, err := l.durable.Pauses(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore pauses: %w", err)
	}

	l.mu.Lock()
	for _, state := range states {
		l.pauses[state.LeadID] = state
	}
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Pauses restored", "count", len(states))

	return nil
}

// dropStale removes the pause of a lead that entered a column other than the paused one.
func (l *Ledger) dropStale(ctx context.Context, leadID, columnID string) {
	l.mu.Lock()
	state, ok := l.pauses[leadID]
	if !ok || state.ColumnID == columnID {
		l.mu.Unlock()

		return
	}

	delete(l.pauses, leadID)
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "Dropped pause of lead that left the column",
		"lead_id", leadID,
		"paused_column_id", state.ColumnID,
		"column_id", columnID,
	)
	l.forget(ctx, leadID)
}

func (l *Ledger) forget(ctx context.Context, leadID string) {
	if l.durable == nil {
		return
	}

	err := l.durable.DeletePause(ctx, leadID)
	if err != nil && !persistence.IsPauseNotFound(err) {
		l.logger.WarnContext(ctx, "Failed to delete durable pause", "lead_id", leadID, "error", err)
	}
}
