package main

import (
	"context"
	"log/slog"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/flow"
	"github.com/dukex/leadflow/pkg/log"
)

// Engine is the part of the flow engine the worker drives from bus events.
type Engine interface {
	OnLeadEnteredColumn(ctx context.Context, entry flow.Entry) error
	Ledger() *flow.Ledger
}

type WorkerManager struct {
	id       string
	logger   *slog.Logger
	engine   Engine
	eventBus eventbus.EventSubscriber
}

func NewWorkerManager(id string, engine Engine, eventBus eventbus.EventSubscriber, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "leadflow-worker", "worker_id", id),
		engine:   engine,
		eventBus: eventBus,
	}
}

// Start registers the event handlers and subscribes to the bus. Messages are dispatched until ctx
// is cancelled.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.LeadEnteredColumnEvent, w.handleLeadEnteredColumn)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.PauseResolutionRequestedEvent, w.handlePauseResolutionRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// Engine failures are already logged and surfaced as notifications, so the handlers ack them.
// Redelivering an entry would replay the side effects of the steps that did succeed.
func (w *WorkerManager) handleLeadEnteredColumn(ctx context.Context, event any) error {
	entered, ok := event.(*events.LeadEnteredColumn)
	if !ok || entered.Lead == nil {
		w.logger.ErrorContext(ctx, "Invalid event type for LeadEnteredColumn")

		return nil
	}

	logger := w.logger.With(
		"lead_id", entered.Lead.ID,
		"column_id", entered.ColumnID,
		"event_id", entered.ID,
	)
	logger.InfoContext(ctx, "Processing lead entered column event")

	ctx = log.WithContext(ctx, logger)

	err := w.engine.OnLeadEnteredColumn(ctx, flow.Entry{
		Lead:           entered.Lead,
		ColumnID:       entered.ColumnID,
		SourceColumnID: entered.SourceColumnID,
		StartActionID:  entered.StartActionID,
		Variables:      entered.Variables,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to run column automation", "error", err)
	}

	return nil
}

func (w *WorkerManager) handlePauseResolutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.PauseResolutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for PauseResolutionRequested")

		return nil
	}

	logger := w.logger.With(
		"lead_id", requested.LeadID,
		"decision", requested.Decision,
		"event_id", requested.ID,
	)
	logger.InfoContext(ctx, "Processing pause resolution event")

	ctx = log.WithContext(ctx, logger)

	resolved, err := w.engine.Ledger().Resolve(ctx, requested.LeadID, requested.Decision, requested.Resume)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to resolve pause", "error", err)

		return nil
	}

	if !resolved {
		logger.WarnContext(ctx, "Lead is no longer paused")
	}

	return nil
}
