// Package batch moves leads between funnels in throttled batches.
//
// A batch_transfer action owns one BatchTransferState. A single coarse poller (one tick per
// second) scans the active states and runs the ones whose next execution time has passed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/leads"
	"github.com/dukex/leadflow/pkg/metrics"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// DefaultInterval is used when a batch_transfer action has no interval.
const DefaultInterval = time.Hour

var ErrNotBatchTransfer = errors.New("action is not a batch_transfer")

type Dependencies struct {
	States      persistence.BatchTransferRepository
	Automations persistence.AutomationRepository
	Leads       *leads.Store
	Backend     protocol.LeadBackend
	Notifier    protocol.Notifier
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// Scheduler creates batch transfer states and advances them on a fixed tick.
type Scheduler struct {
	states      persistence.BatchTransferRepository
	automations persistence.AutomationRepository
	leads       *leads.Store
	backend     protocol.LeadBackend
	notifier    protocol.Notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       clockwork.Clock

	mu   sync.Mutex
	cron *cron.Cron
}

func NewScheduler(deps Dependencies, opts ...Option) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		states:      deps.States,
		automations: deps.Automations,
		leads:       deps.Leads,
		backend:     deps.Backend,
		notifier:    deps.Notifier,
		logger:      logger.With("module", "batch_scheduler"),
		metrics:     deps.Metrics,
		clock:       clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ensure creates the state owned by a batch_transfer action, or reactivates a finished one.
// An active state is returned unchanged.
func (s *Scheduler) Ensure(ctx context.Context, automation *models.Automation, action *models.Action) (*models.BatchTransferState, error) {
	cfg, ok := action.Config.(*models.BatchTransferConfig)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBatchTransfer, action.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := models.BatchTransferID(automation.ID, action.ID)

	existing, err := s.states.BatchTransferByID(ctx, id)
	if err != nil && !persistence.IsBatchTransferNotFound(err) {
		return nil, err
	}

	if existing != nil && existing.Active {
		return existing, nil
	}

	now := s.clock.Now()

	state := existing
	if state == nil {
		state = &models.BatchTransferState{
			ID:           id,
			AutomationID: automation.ID,
			ActionID:     action.ID,
			CreatedAt:    now,
		}
	}

	state.SourceFunnelID = automation.FunnelID
	state.SourceColumnID = automation.ColumnID
	state.TargetFunnelID = cfg.TargetFunnelID
	state.TargetColumnID = cfg.TargetColumnID
	state.BatchSize = cfg.BatchSize
	state.Interval = interval(cfg)
	state.Quota = cfg.MaxLeads
	state.ProcessedCount = 0
	state.NextExecutionAt = now
	state.Active = true
	state.UpdatedAt = now

	if state.Quota <= 0 {
		state.Quota = len(s.leads.InColumn(state.SourceFunnelID, state.SourceColumnID))
	}

	err = s.states.SaveBatchTransfer(ctx, state)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Batch transfer activated",
		"batch_id", state.ID,
		"quota", state.Quota,
		"batch_size", state.BatchSize,
	)

	return state, nil
}

func interval(cfg *models.BatchTransferConfig) models.DelayConfig {
	if cfg.Interval == nil || cfg.Interval.Duration() <= 0 {
		return models.DelayConfig{Value: DefaultInterval.Minutes(), Unit: models.DelayUnitMinutes}
	}

	return *cfg.Interval
}

// Detect activates the batch transfers of active automations that have leads waiting in their
// column. It returns how many states were activated or found active.
func (s *Scheduler) Detect(ctx context.Context) (int, error) {
	automations, err := s.automations.Automations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list automations: %w", err)
	}

	count := 0

	for _, automation := range automations {
		if !automation.Active {
			continue
		}

		if len(s.leads.InColumn(automation.FunnelID, automation.ColumnID)) == 0 {
			continue
		}

		for _, action := range automation.EnabledActions() {
			if action.Type != models.ActionTypeBatchTransfer {
				continue
			}

			_, err := s.Ensure(ctx, automation, action)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to activate batch transfer",
					"automation_id", automation.ID,
					"action_id", action.ID,
					"error", err,
				)

				continue
			}

			count++
		}
	}

	return count, nil
}

// Tick runs every state due at now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	states, err := s.states.BatchTransfers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list batch transfers: %w", err)
	}

	for _, state := range states {
		if !state.Due(now) {
			continue
		}

		err := s.runBatch(ctx, state, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Batch transfer failed", "batch_id", state.ID, "error", err)
		}
	}

	return nil
}

func (s *Scheduler) runBatch(ctx context.Context, state *models.BatchTransferState, now time.Time) error {
	waiting := s.leads.InColumn(state.SourceFunnelID, state.SourceColumnID)

	size := min(state.BatchSize, state.Remaining(), len(waiting))
	moved := 0

	for _, lead := range waiting[:max(size, 0)] {
		if s.transfer(ctx, lead, state) {
			moved++
		}
	}

	state.ProcessedCount += moved
	state.LastExecutionAt = &now
	state.NextExecutionAt = cron.Every(state.Interval.Duration()).Next(now)
	state.UpdatedAt = now

	s.metrics.LeadsTransferred(moved)

	finished := state.Remaining() == 0 || len(waiting)-moved == 0
	if finished {
		state.Active = false
	}

	err := s.states.SaveBatchTransfer(ctx, state)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Batch transfer ran",
		"batch_id", state.ID,
		"moved", moved,
		"processed", state.ProcessedCount,
		"quota", state.Quota,
		"finished", finished,
	)

	notification := models.Notification{
		Kind:         models.NotificationBatchTransferProgress,
		Title:        "Batch transfer",
		Message:      fmt.Sprintf("%d leads transferred (%d/%d)", moved, state.ProcessedCount, state.Quota),
		AutomationID: state.AutomationID,
		ActionID:     state.ActionID,
		CreatedAt:    now,
	}

	if finished {
		notification.Kind = models.NotificationBatchTransferCompleted
		notification.Message = fmt.Sprintf("Batch transfer completed: %d leads transferred", state.ProcessedCount)
	}

	if s.notifier != nil {
		err = s.notifier.Notify(ctx, notification)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to deliver notification", "batch_id", state.ID, "error", err)
		}
	}

	return nil
}

// transfer moves one lead to the target funnel and reports whether it succeeded.
func (s *Scheduler) transfer(ctx context.Context, lead *models.Lead, state *models.BatchTransferState) bool {
	previous, err := s.leads.SetFunnel(lead.ID, state.TargetFunnelID, state.TargetColumnID)
	if err != nil {
		s.logger.WarnContext(ctx, "Lead vanished before transfer", "lead_id", lead.ID, "error", err)

		return false
	}

	funnel, column := state.TargetFunnelID, state.TargetColumnID

	err = s.backend.UpdateLead(ctx, lead.ID, models.LeadPatch{FunnelID: &funnel, Status: &column})
	if err != nil {
		s.leads.RevertColumn(previous)
		s.logger.WarnContext(ctx, "Failed to transfer lead", "lead_id", lead.ID, "batch_id", state.ID, "error", err)

		return false
	}

	return true
}

// States lists every batch transfer.
func (s *Scheduler) States(ctx context.Context) ([]*models.BatchTransferState, error) {
	return s.states.BatchTransfers(ctx)
}

// Start runs Tick once per second until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc("@every 1s", func() {
		if ctx.Err() != nil {
			return
		}

		err := s.Tick(ctx, s.clock.Now())
		if err != nil {
			s.logger.ErrorContext(ctx, "Batch tick failed", "error", err)
		}
	})
	if err != nil {
		s.cron = nil

		return fmt.Errorf("failed to schedule batch tick: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Batch scheduler started")

	return nil
}

// Stop halts the tick and waits for a running one to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	s.logger.Info("Batch scheduler stopped")
}
