package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/leadflow/pkg/actions"
	"github.com/dukex/leadflow/pkg/batch"
	"github.com/dukex/leadflow/pkg/flow"
	"github.com/dukex/leadflow/pkg/gateway/crm"
	"github.com/dukex/leadflow/pkg/gateway/whatsapp"
	"github.com/dukex/leadflow/pkg/leads"
	"github.com/dukex/leadflow/pkg/metrics"
	"github.com/dukex/leadflow/pkg/otelhelper"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// GatewayConfig addresses the CRM backend and the messaging gateway.
type GatewayConfig struct {
	CRMURL        string
	CRMToken      string
	WhatsAppURL   string
	WhatsAppToken string
	Timeout       time.Duration
}

// Backend is everything the runtime needs from the CRM.
type Backend interface {
	protocol.LeadBackend
	protocol.TaskService
	protocol.TeamDirectory
}

// NewGateways builds the HTTP clients of the CRM backend and the messaging gateway.
func NewGateways(cfg GatewayConfig, logger *slog.Logger) (*crm.Client, *whatsapp.Client) {
	backend := crm.NewClient(crm.Config{BaseURL: cfg.CRMURL, Token: cfg.CRMToken, Timeout: cfg.Timeout}, logger)
	messenger := whatsapp.NewClient(whatsapp.Config{BaseURL: cfg.WhatsAppURL, Token: cfg.WhatsAppToken, Timeout: cfg.Timeout}, logger)

	return backend, messenger
}

// RuntimeDependencies groups what NewRuntime wires together.
type RuntimeDependencies struct {
	Persistence persistence.Persistence
	Backend     Backend
	Messenger   protocol.Messenger
	Notifier    protocol.Notifier
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	Clock       clockwork.Clock

	// ReplyPollInterval overrides how often waiting WhatsApp actions check for a reply.
	ReplyPollInterval time.Duration
}

// Runtime is the automation engine with its executor, lead store and batch scheduler.
type Runtime struct {
	Engine  *flow.Engine
	Batches *batch.Scheduler
	Leads   *leads.Store

	backend Backend
	logger  *slog.Logger
}

func NewRuntime(deps RuntimeDependencies) *Runtime {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	store := leads.NewStore(clock)

	batches := batch.NewScheduler(batch.Dependencies{
		States:      deps.Persistence.BatchTransferRepository(),
		Automations: deps.Persistence.AutomationRepository(),
		Leads:       store,
		Backend:     deps.Backend,
		Notifier:    deps.Notifier,
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
	}, batch.WithClock(clock))

	executor := actions.NewExecutor(actions.Dependencies{
		Messenger: deps.Messenger,
		Tasks:     deps.Backend,
		Backend:   deps.Backend,
		Team:      deps.Backend,
		Notifier:  deps.Notifier,
		Batches:   batches,
		Leads:     store,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
	}, actions.WithClock(clock))

	engineOpts := []flow.Option{flow.WithClock(clock), flow.WithTracer(tracer)}
	if deps.ReplyPollInterval > 0 {
		engineOpts = append(engineOpts, flow.WithPollInterval(deps.ReplyPollInterval))
	}

	engine := flow.NewEngine(flow.Dependencies{
		Automations:    deps.Persistence.AutomationRepository(),
		Pauses:         deps.Persistence.PauseRepository(),
		CurrentActions: deps.Persistence.CurrentActionRepository(),
		Leads:          store,
		Executor:       executor,
		Messenger:      deps.Messenger,
		Backend:        deps.Backend,
		Notifier:       deps.Notifier,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
	}, engineOpts...)

	return &Runtime{
		Engine:  engine,
		Batches: batches,
		Leads:   store,
		backend: deps.Backend,
		logger:  deps.Logger,
	}
}

// Start hydrates the lead store, restores the run state and starts the batch scheduler.
func (r *Runtime) Start(ctx context.Context) error {
	loaded, err := r.Leads.Load(ctx, r.backend)
	if err != nil {
		return err
	}

	err = r.Engine.Ledger().Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore pauses: %w", err)
	}

	pruned := r.Engine.Ledger().Prune(ctx)

	restored, err := r.Engine.RestoreCurrentActions(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore current actions: %w", err)
	}

	detected, err := r.Batches.Detect(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect batch transfers: %w", err)
	}

	r.logger.InfoContext(ctx, "Runtime restored",
		"leads", loaded,
		"pauses", len(r.Engine.Ledger().List()),
		"pruned_pauses", pruned,
		"current_actions", restored,
		"batch_transfers", detected,
	)

	return r.Batches.Start(ctx)
}

// Stop halts the scheduler and waits for pending continuations.
func (r *Runtime) Stop() {
	r.Batches.Stop()
	r.Engine.Close()
}
