// Package actions performs the side effect of a single automation action.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/leads"
	"github.com/dukex/leadflow/pkg/metrics"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultTransferDelay is the processing pause before a funnel transfer is applied.
const DefaultTransferDelay = 3 * time.Second

var (
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrLeadRequired      = errors.New("lead is required")
)

// BatchStarter creates or reactivates the batch transfer owned by an action.
type BatchStarter interface {
	Ensure(ctx context.Context, automation *models.Automation, action *models.Action) (*models.BatchTransferState, error)
}

// Dependencies groups the collaborators an Executor talks to.
type Dependencies struct {
	Messenger protocol.Messenger
	Tasks     protocol.TaskService
	Backend   protocol.LeadBackend
	Team      protocol.TeamDirectory
	Notifier  protocol.Notifier
	Batches   BatchStarter
	Leads     *leads.Store
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Request is one action to perform for one lead.
type Request struct {
	Lead       *models.Lead
	Automation *models.Automation
	Action     *models.Action
	Variables  map[string]string
}

type Option func(*Executor)

func WithClock(clock clockwork.Clock) Option {
	return func(x *Executor) { x.clock = clock }
}

// WithTransferDelay overrides the pause applied before funnel transfers. Zero disables it.
func WithTransferDelay(d time.Duration) Option {
	return func(x *Executor) { x.transferDelay = d }
}

type Executor struct {
	messenger     protocol.Messenger
	tasks         protocol.TaskService
	backend       protocol.LeadBackend
	team          protocol.TeamDirectory
	notifier      protocol.Notifier
	batches       BatchStarter
	leads         *leads.Store
	logger        *slog.Logger
	metrics       *metrics.Metrics
	clock         clockwork.Clock
	transferDelay time.Duration
}

func NewExecutor(deps Dependencies, opts ...Option) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	x := &Executor{
		messenger:     deps.Messenger,
		tasks:         deps.Tasks,
		backend:       deps.Backend,
		team:          deps.Team,
		notifier:      deps.Notifier,
		batches:       deps.Batches,
		leads:         deps.Leads,
		logger:        logger.With("module", "action_executor"),
		metrics:       deps.Metrics,
		clock:         clockwork.NewRealClock(),
		transferDelay: DefaultTransferDelay,
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// Execute performs the action's side effect. Only whatsapp and move_lead report an Outcome.
func (x *Executor) Execute(ctx context.Context, req Request) (*models.Outcome, error) {
	if req.Lead == nil {
		return nil, ErrLeadRequired
	}

	started := x.clock.Now()

	outcome, err := x.execute(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}

	x.metrics.StepExecuted(string(req.Action.Type), status, x.clock.Since(started).Seconds())

	return outcome, err
}

func (x *Executor) execute(ctx context.Context, req Request) (*models.Outcome, error) {
	switch cfg := req.Action.Config.(type) {
	case *models.ManualConfig:
		x.note(ctx, req.Lead.ID, fmt.Sprintf("Manual step %q executed", actionLabel(req.Action)))

		return nil, nil
	case *models.WhatsAppConfig:
		return x.sendWhatsApp(ctx, req, cfg)
	case *models.TaskConfig:
		return nil, x.createTask(ctx, req, cfg)
	case *models.MoveLeadConfig:
		return x.moveLead(ctx, req.Lead, cfg)
	case *models.TransferCommandConfig:
		return nil, x.transfer(ctx, req.Lead, cfg)
	case *models.BatchTransferConfig:
		return nil, x.startBatch(ctx, req)
	case *models.EmailConfig:
		return nil, x.acknowledgeEmail(ctx, req, cfg)
	case *models.NotificationConfig:
		return nil, x.notify(ctx, req, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, req.Action.Type)
	}
}

func (x *Executor) createTask(ctx context.Context, req Request, cfg *models.TaskConfig) error {
	now := x.clock.Now()

	title, err := x.render(cfg.Title, req, now)
	if err != nil {
		return err
	}

	description, err := x.render(cfg.Description, req, now)
	if err != nil {
		return err
	}

	assignee := cfg.AssigneeID
	if assignee == "" {
		assignee = req.Lead.AssigneeID
	}

	priority := cfg.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}

	task := &models.Task{
		ID:           uuid.NewString(),
		LeadID:       req.Lead.ID,
		AutomationID: req.Automation.ID,
		Title:        title,
		Description:  description,
		Priority:     priority,
		AssigneeID:   assignee,
		DueDate:      now.AddDate(0, 0, cfg.DueInDays),
		CreatedAt:    now,
	}

	err = x.tasks.CreateTask(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to create task %q: %w", title, err)
	}

	x.note(ctx, req.Lead.ID, fmt.Sprintf("Task %q created by automation", title))

	return nil
}

func (x *Executor) startBatch(ctx context.Context, req Request) error {
	state, err := x.batches.Ensure(ctx, req.Automation, req.Action)
	if err != nil {
		return fmt.Errorf("failed to schedule batch transfer: %w", err)
	}

	x.logger.InfoContext(ctx, "Batch transfer scheduled",
		"batch_id", state.ID,
		"quota", state.Quota,
		"next_execution_at", state.NextExecutionAt,
	)

	return nil
}

func (x *Executor) acknowledgeEmail(ctx context.Context, req Request, cfg *models.EmailConfig) error {
	subject, err := x.render(cfg.Subject, req, x.clock.Now())
	if err != nil {
		return err
	}

	to := cfg.To
	if to == "" {
		to = req.Lead.Email
	}

	return x.raise(ctx, models.Notification{
		Kind:         models.NotificationGeneric,
		Title:        "Email queued",
		Message:      fmt.Sprintf("Email %q queued for %s", subject, to),
		LeadID:       req.Lead.ID,
		AutomationID: req.Automation.ID,
		ActionID:     req.Action.ID,
	})
}

func (x *Executor) notify(ctx context.Context, req Request, cfg *models.NotificationConfig) error {
	message, err := x.render(cfg.Message, req, x.clock.Now())
	if err != nil {
		return err
	}

	title := cfg.Title
	if title == "" {
		title = req.Automation.Name
	}

	return x.raise(ctx, models.Notification{
		Kind:         models.NotificationGeneric,
		Title:        title,
		Message:      message,
		LeadID:       req.Lead.ID,
		AutomationID: req.Automation.ID,
		ActionID:     req.Action.ID,
	})
}

func (x *Executor) raise(ctx context.Context, notification models.Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = x.clock.Now()
	}

	err := x.notifier.Notify(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}

	return nil
}

// note appends an audit note. Failures are logged and never fail the action.
func (x *Executor) note(ctx context.Context, leadID, text string) {
	note := &models.Note{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Kind:      models.NoteKindAutomation,
		Text:      text,
		CreatedAt: x.clock.Now(),
	}

	err := x.backend.AddInteractionNote(ctx, leadID, note)
	if err != nil {
		x.logger.WarnContext(ctx, "Failed to add interaction note", "lead_id", leadID, "error", err)
	}
}

func actionLabel(action *models.Action) string {
	if action.Name != "" {
		return action.Name
	}

	return action.ID
}
