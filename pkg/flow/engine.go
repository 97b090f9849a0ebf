// Package flow walks the action graph of an automation for one lead at a time.
//
// A run starts when a lead enters a column. Each lead has a generation counter (the run
// token); starting a new run bumps it, and every continuation (deferred step, reply poll,
// cascade) checks that its token is still current and that the lead is still in the
// automation's column before doing anything.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/actions"
	flowlog "github.com/dukex/leadflow/pkg/log"
	"github.com/dukex/leadflow/pkg/leads"
	"github.com/dukex/leadflow/pkg/metrics"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPollInterval is how often a waiting WhatsApp action checks for a reply.
	DefaultPollInterval = 5 * time.Second

	// maxCascadeDepth bounds stage-to-stage hand-offs started by a single entry.
	maxCascadeDepth = 16
)

var (
	ErrNoAutomation        = errors.New("no active on_enter automation for column")
	ErrUnknownLead         = errors.New("unknown lead")
	ErrInvalidResumeTarget = errors.New("invalid resume target")
	ErrInvalidDecision     = errors.New("invalid decision")
	ErrCascadeTooDeep      = errors.New("stage cascade too deep")
)

// ActionExecutor performs a single action.
type ActionExecutor interface {
	Execute(ctx context.Context, req actions.Request) (*models.Outcome, error)
}

// Dependencies groups the collaborators of an Engine.
type Dependencies struct {
	Automations    persistence.AutomationRepository
	Pauses         persistence.PauseRepository
	CurrentActions persistence.CurrentActionRepository
	Leads          *leads.Store
	Executor       ActionExecutor
	Messenger      protocol.Messenger
	Backend        protocol.LeadBackend
	Notifier       protocol.Notifier
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// Engine is the flow interpreter. It is safe for concurrent use.
type Engine struct {
	automations    persistence.AutomationRepository
	currentActions persistence.CurrentActionRepository
	leads          *leads.Store
	executor       ActionExecutor
	messenger      protocol.Messenger
	backend        protocol.LeadBackend
	notifier       protocol.Notifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	clock          clockwork.Clock
	pollInterval   time.Duration
	ledger         *Ledger

	mu     sync.Mutex
	tokens map[string]uint64
	timers map[string]clockwork.Timer
	closed bool
	wg     sync.WaitGroup

	// ctx outlives the calls that schedule continuations; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// run is one walk of an automation for one lead.
type run struct {
	leadID     string
	automation *models.Automation
	token      uint64
	visited    map[string]struct{}
	variables  map[string]string
	depth      int
}

func NewEngine(deps Dependencies, opts ...Option) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		automations:    deps.Automations,
		currentActions: deps.CurrentActions,
		leads:          deps.Leads,
		executor:       deps.Executor,
		messenger:      deps.Messenger,
		backend:        deps.Backend,
		notifier:       deps.Notifier,
		logger:         logger.With("module", "flow"),
		metrics:        deps.Metrics,
		tracer:         otelhelper.NoopTracer(),
		clock:          clockwork.NewRealClock(),
		pollInterval:   DefaultPollInterval,
		tokens:         make(map[string]uint64),
		timers:         make(map[string]clockwork.Timer),
		ctx:            ctx,
		cancel:         cancel,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.ledger = newLedger(e, deps.Pauses)

	return e
}

// Ledger returns the pause ledger bound to this engine.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Close cancels pending continuations and waits for running ones to return.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true

	for leadID, timer := range e.timers {
		timer.Stop()
		delete(e.timers, leadID)
	}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// Entry describes a lead entering a column.
type Entry struct {
	Lead           *models.Lead
	ColumnID       string
	SourceColumnID string
	StartActionID  string
	Variables      map[string]string
}

// OnLeadEnteredColumn is the entry point used by the board when a lead's column change is
// confirmed. It starts the column's active on_enter automation, if any.
func (e *Engine) OnLeadEnteredColumn(ctx context.Context, entry Entry) error {
	if entry.Lead == nil || entry.Lead.ID == "" {
		return ErrUnknownLead
	}

	leadID := entry.Lead.ID

	incoming := entry.Lead.Clone()
	if entry.ColumnID == "" {
		entry.ColumnID = incoming.Status
	}

	// The store owns the column; the move itself goes through SetColumn so history is kept.
	if current, known := e.leads.Column(leadID); known {
		incoming.Status = current
	} else {
		incoming.Status = entry.SourceColumnID
	}

	e.leads.Upsert(incoming)

	_, err := e.leads.SetColumn(leadID, entry.ColumnID)
	if err != nil {
		return err
	}

	e.bumpToken(leadID)
	e.cancelTimer(leadID)
	e.ledger.dropStale(ctx, leadID, entry.ColumnID)

	automation, err := e.automationFor(ctx, entry.ColumnID)
	if errors.Is(err, ErrNoAutomation) {
		e.logger.DebugContext(ctx, "No automation for column", "lead_id", leadID, "column_id", entry.ColumnID)

		return nil
	}

	if err != nil {
		return err
	}

	e.metrics.RunStarted("enter")

	return e.startRun(ctx, automation, leadID, entry.StartActionID, entry.Variables, 0)
}

// automationFor returns the first active on_enter automation bound to the column in stored order.
func (e *Engine) automationFor(ctx context.Context, columnID string) (*models.Automation, error) {
	candidates, err := e.automations.AutomationsByColumn(ctx, columnID)
	if err != nil {
		return nil, fmt.Errorf("failed to load automations for column %s: %w", columnID, err)
	}

	found, shadowed := models.FirstOnEnter(candidates)

	for _, automation := range shadowed {
		e.logger.WarnContext(ctx, "Multiple active on_enter automations for column, using the first",
			"column_id", columnID,
			"used", found.ID,
			"ignored", automation.ID,
		)
	}

	if found == nil {
		return nil, ErrNoAutomation
	}

	return found, nil
}

// startRun issues a new run token for the lead and walks the automation from startActionID,
// or from its first enabled action.
func (e *Engine) startRun(ctx context.Context, automation *models.Automation, leadID, startActionID string, vars map[string]string, depth int) error {
	if depth > maxCascadeDepth {
		return fmt.Errorf("%w: lead %s at automation %s", ErrCascadeTooDeep, leadID, automation.ID)
	}

	r := &run{
		leadID:     leadID,
		automation: automation,
		token:      e.nextToken(leadID),
		visited:    make(map[string]struct{}),
		variables:  vars,
		depth:      depth,
	}

	start := startActionID
	if start == "" {
		first := automation.FirstEnabled()
		if first == nil {
			return nil
		}

		start = first.ID
	}

	e.logger.InfoContext(ctx, "Automation triggered",
		"lead_id", leadID,
		"automation_id", automation.ID,
		"start_action_id", start,
		"run_token", r.token,
	)
	e.raise(ctx, models.Notification{
		Kind:         models.NotificationAutomationTriggered,
		Title:        automation.Name,
		Message:      fmt.Sprintf("Automation %q started", automation.Name),
		LeadID:       leadID,
		AutomationID: automation.ID,
	})

	if delay := automation.EntryDelay.Duration(); delay > 0 {
		e.schedule(r, delay, func(ctx context.Context) error {
			return e.step(ctx, r, start, false)
		})

		return nil
	}

	return e.step(ctx, r, start, false)
}

// step executes one action of the run and follows its continuation.
func (e *Engine) step(ctx context.Context, r *run, actionID string, bypassDelay bool) error {
	if !e.isCurrent(r) {
		return nil
	}

	if _, seen := r.visited[actionID]; seen {
		e.logger.WarnContext(ctx, "Cycle detected, stopping run", "lead_id", r.leadID, "action_id", actionID)

		return nil
	}

	action := r.automation.ActionByID(actionID)
	if action == nil || !action.Enabled {
		return nil
	}

	if action.IsManual() {
		return e.ledger.Pause(ctx, r.leadID, r.automation, action.ID)
	}

	if delay := action.DelayConfig.Duration(); delay > 0 && !bypassDelay {
		e.setCurrentAction(ctx, r.leadID, action.ID)
		e.schedule(r, delay, func(ctx context.Context) error {
			return e.step(ctx, r, action.ID, true)
		})

		return nil
	}

	r.visited[action.ID] = struct{}{}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "flow.step",
		attribute.String(otelhelper.LeadIDKey, r.leadID),
		attribute.String(otelhelper.AutomationIDKey, r.automation.ID),
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
		attribute.Int64(otelhelper.RunTokenKey, int64(r.token)),
	)
	defer span.End()

	logger := flowlog.FromContext(ctx, e.logger).With("lead_id", r.leadID, "action_id", action.ID)

	e.setCurrentAction(ctx, r.leadID, action.ID)

	lead, ok := e.leads.Get(r.leadID)
	if !ok {
		return otelhelper.SetError(span, fmt.Errorf("%w: %s", ErrUnknownLead, r.leadID))
	}

	outcome, err := e.executor.Execute(ctx, actions.Request{
		Lead:       lead,
		Automation: r.automation,
		Action:     action,
		Variables:  r.variables,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Action failed", "type", action.Type, "error", err)
		e.raise(ctx, models.Notification{
			Kind:         models.NotificationActionFailed,
			Title:        r.automation.Name,
			Message:      fmt.Sprintf("Action %q failed: %v", actionLabel(action), err),
			LeadID:       r.leadID,
			AutomationID: r.automation.ID,
			ActionID:     action.ID,
		})

		return otelhelper.SetError(span, fmt.Errorf("action %s failed: %w", action.ID, err))
	}

	logger.DebugContext(ctx, "Action executed", "type", action.Type)

	if outcome != nil && outcome.Kind == models.OutcomeMoved {
		return e.handOff(ctx, r, outcome.ColumnID)
	}

	if e.holdsToken(r) && !e.inColumn(r) {
		// Funnel transfers and batch ticks take the lead out of the column without a handoff.
		e.clearCurrentAction(ctx, r.leadID)

		return nil
	}

	if cfg, ok := action.Config.(*models.WhatsAppConfig); ok && cfg.WaitForResponse &&
		outcome != nil && outcome.PrimaryDelivered {
		e.spawn(func(ctx context.Context) {
			e.awaitReply(ctx, r, action, cfg, outcome)
		})

		return nil
	}

	return e.follow(ctx, r, nextTarget(r.automation, action))
}

// follow applies a continuation target.
func (e *Engine) follow(ctx context.Context, r *run, target *models.FlowTarget) error {
	if !e.isCurrent(r) {
		return nil
	}

	switch {
	case target == nil:
		e.clearCurrentAction(ctx, r.leadID)

		return nil
	case target.Kind == models.TargetKindAction:
		return e.step(ctx, r, target.ActionID, false)
	case target.Kind == models.TargetKindStage:
		return e.moveToStage(ctx, r.leadID, target.ColumnID, target.StartActionID, r.variables, r.depth+1)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResumeTarget, target.Kind)
	}
}

// nextTarget is the action's explicit next, or the first enabled action declared after it.
func nextTarget(automation *models.Automation, action *models.Action) *models.FlowTarget {
	if action.Next != nil {
		return action.Next
	}

	if next := automation.NextEnabledAfter(action.ID); next != nil {
		return models.ActionTarget(next.ID)
	}

	return nil
}

// MoveToStage moves a lead to a column and runs that column's automation.
func (e *Engine) MoveToStage(ctx context.Context, leadID, columnID, startActionID string) error {
	return e.moveToStage(ctx, leadID, columnID, startActionID, nil, 0)
}

func (e *Engine) moveToStage(ctx context.Context, leadID, columnID, startActionID string, vars map[string]string, depth int) error {
	previous, err := e.leads.SetColumn(leadID, columnID)
	if err != nil {
		return err
	}

	e.clearCurrentAction(ctx, leadID)

	err = e.backend.UpdateLeadStatus(ctx, leadID, columnID)
	if err != nil {
		e.leads.RevertColumn(previous)
		e.metrics.LeadMoved(false)
		e.logger.ErrorContext(ctx, "Failed to persist stage move", "lead_id", leadID, "column_id", columnID, "error", err)
		e.raise(ctx, models.Notification{
			Kind:    models.NotificationActionFailed,
			Title:   "Move failed",
			Message: fmt.Sprintf("Could not move lead to %s: %v", columnID, err),
			LeadID:  leadID,
		})

		return fmt.Errorf("failed to move lead %s to %s: %w", leadID, columnID, err)
	}

	e.metrics.LeadMoved(true)
	e.raise(ctx, models.Notification{
		Kind:    models.NotificationLeadMoved,
		Title:   "Lead moved",
		Message: fmt.Sprintf("Moved from %s to %s", previous.Status, columnID),
		LeadID:  leadID,
	})

	return e.cascade(ctx, leadID, columnID, startActionID, vars, depth)
}

// handOff continues after a move_lead action, which already moved and persisted the lead.
// The new column's automation starts as it would for any other entry.
func (e *Engine) handOff(ctx context.Context, r *run, columnID string) error {
	e.clearCurrentAction(ctx, r.leadID)

	return e.cascade(ctx, r.leadID, columnID, "", r.variables, r.depth+1)
}

func (e *Engine) cascade(ctx context.Context, leadID, columnID, startActionID string, vars map[string]string, depth int) error {
	e.ledger.dropStale(ctx, leadID, columnID)

	automation, err := e.automationFor(ctx, columnID)
	if errors.Is(err, ErrNoAutomation) {
		e.bumpToken(leadID)

		return nil
	}

	if err != nil {
		return err
	}

	e.metrics.RunStarted("cascade")

	return e.startRun(ctx, automation, leadID, startActionID, vars, depth)
}

func (e *Engine) awaitReply(ctx context.Context, r *run, action *models.Action, cfg *models.WhatsAppConfig, outcome *models.Outcome) {
	timeout := cfg.ResponseTimeoutMinutes
	if timeout <= 0 {
		timeout = models.DefaultResponseTimeoutMinutes
	}

	deadline := e.clock.Now().Add(time.Duration(timeout) * time.Minute)
	logger := e.logger.With("lead_id", r.leadID, "action_id", action.ID)

	ticker := e.clock.NewTicker(e.pollInterval)
	defer ticker.Stop()

	replied := false

poll:
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !e.isCurrent(r) {
				logger.DebugContext(ctx, "Reply wait abandoned, run superseded")

				return
			}

			ok, err := e.messenger.HasRepliedSince(ctx, outcome.PrimaryContactID, outcome.SentAt)
			if err != nil {
				logger.WarnContext(ctx, "Reply check failed", "error", err)
			}

			if ok {
				replied = true

				break poll
			}

			if !e.clock.Now().Before(deadline) {
				break poll
			}
		}
	}

	logger.InfoContext(ctx, "Reply wait finished", "replied", replied)

	target := nextTarget(r.automation, action)

	switch {
	case replied && cfg.OnResponseNext != nil:
		target = cfg.OnResponseNext
	case !replied && cfg.OnNoResponseNext != nil:
		target = cfg.OnNoResponseNext
	}

	err := e.follow(ctx, r, target)
	if err != nil {
		logger.ErrorContext(ctx, "Continuation after reply wait failed", "error", err)
	}
}

// schedule runs fn after d unless the run has been superseded by then.
// At most one timer is pending per lead.
func (e *Engine) schedule(r *run, d time.Duration, fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	if pending, ok := e.timers[r.leadID]; ok {
		pending.Stop()
	}

	var timer clockwork.Timer

	timer = e.clock.AfterFunc(d, func() {
		e.mu.Lock()
		if e.timers[r.leadID] == timer {
			delete(e.timers, r.leadID)
		}
		e.mu.Unlock()

		e.spawn(func(ctx context.Context) {
			err := fn(ctx)
			if err != nil {
				e.logger.ErrorContext(ctx, "Deferred step failed", "lead_id", r.leadID, "error", err)
			}
		})
	})
	e.timers[r.leadID] = timer
}

// cancelTimer stops the pending deferred step of a lead, if any.
func (e *Engine) cancelTimer(leadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pending, ok := e.timers[leadID]; ok {
		pending.Stop()
		delete(e.timers, leadID)
	}
}

// spawn runs fn on its own goroutine with the engine context.
func (e *Engine) spawn(fn func(ctx context.Context)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()

		return
	}

	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		fn(e.ctx)
	}()
}

func (e *Engine) nextToken(leadID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tokens[leadID]++

	return e.tokens[leadID]
}

// bumpToken invalidates every continuation of the lead's current run.
func (e *Engine) bumpToken(leadID string) {
	e.nextToken(leadID)
}

// isCurrent reports whether the run still owns the lead and the lead is still in its column.
func (e *Engine) isCurrent(r *run) bool {
	return e.holdsToken(r) && e.inColumn(r)
}

func (e *Engine) holdsToken(r *run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.tokens[r.leadID] == r.token
}

func (e *Engine) inColumn(r *run) bool {
	column, ok := e.leads.Column(r.leadID)

	return ok && column == r.automation.ColumnID
}

func (e *Engine) setCurrentAction(ctx context.Context, leadID, actionID string) {
	err := e.leads.SetCurrentAction(leadID, actionID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to set current action", "lead_id", leadID, "error", err)
	}

	if e.currentActions == nil {
		return
	}

	err = e.currentActions.SetCurrentAction(ctx, leadID, actionID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to persist current action", "lead_id", leadID, "error", err)
	}
}

func (e *Engine) clearCurrentAction(ctx context.Context, leadID string) {
	_ = e.leads.SetCurrentAction(leadID, "")

	if e.currentActions == nil {
		return
	}

	err := e.currentActions.ClearCurrentAction(ctx, leadID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to clear current action", "lead_id", leadID, "error", err)
	}
}

// RestoreCurrentActions copies the durable lead_current_actions map into the lead store.
func (e *Engine) RestoreCurrentActions(ctx context.Context) (int, error) {
	if e.currentActions == nil {
		return 0, nil
	}

	current, err := e.currentActions.CurrentActions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load current actions: %w", err)
	}

	restored := 0

	for leadID, actionID := range current {
		if e.leads.SetCurrentAction(leadID, actionID) == nil {
			restored++
		}
	}

	return restored, nil
}

// raise sends a notification. Delivery failures are only logged.
func (e *Engine) raise(ctx context.Context, notification models.Notification) {
	if e.notifier == nil {
		return
	}

	notification.CreatedAt = e.clock.Now()

	err := e.notifier.Notify(ctx, notification)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to deliver notification", "kind", notification.Kind, "error", err)
	}
}

func actionLabel(action *models.Action) string {
	if action.Name != "" {
		return action.Name
	}

	return action.ID
}
