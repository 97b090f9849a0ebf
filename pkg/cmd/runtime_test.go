package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/eventbus"
	"github.com/dukex/leadflow/pkg/flow"
	"github.com/dukex/leadflow/pkg/metrics"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type requestLog struct {
	mu    sync.Mutex
	lines []string
}

func (r *requestLog) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, req.Method+" "+req.URL.Path)
}

func (r *requestLog) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.lines...)
}

func newGatewayServer(t *testing.T, routes map[string]string) (*httptest.Server, *requestLog) {
	t.Helper()

	log := &requestLog{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		log.add(req)

		w.Header().Set("Content-Type", "application/json")

		body, ok := routes[req.Method+" "+req.URL.Path]
		if !ok {
			body = `{}`
		}

		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, log
}

type runtimeFixture struct {
	runtime  *Runtime
	store    *file.Persistence
	crm      *requestLog
	whatsapp *requestLog
}

func newRuntimeFixture(t *testing.T, automations ...*models.Automation) *runtimeFixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	crmServer, crmLog := newGatewayServer(t, map[string]string{
		"GET /leads":        `{"data":[{"id":"L1","name":"Ana","phone":"5511999990000","status":"novo"}]}`,
		"GET /team/members": `[]`,
	})
	whatsappServer, whatsappLog := newGatewayServer(t, map[string]string{
		"POST /messages": `{"id":"m1"}`,
	})

	backend, messenger := NewGateways(GatewayConfig{
		CRMURL:      crmServer.URL,
		WhatsAppURL: whatsappServer.URL,
		Timeout:     time.Second,
	}, logger)

	store := file.NewPersistence(t.TempDir())
	for _, automation := range automations {
		require.NoError(t, store.AutomationRepository().SaveAutomation(t.Context(), automation))
	}

	bus, err := NewEventBus("gochannel", "", "leadflow-test", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	runtime := NewRuntime(RuntimeDependencies{
		Persistence: store,
		Backend:     backend,
		Messenger:   messenger,
		Notifier:    eventbus.NewNotifier(bus),
		Logger:      logger,
		Metrics:     metrics.New(),
	})
	t.Cleanup(runtime.Stop)

	return &runtimeFixture{runtime: runtime, store: store, crm: crmLog, whatsapp: whatsappLog}
}

func taskAutomation() *models.Automation {
	return &models.Automation{
		ID:       "closing",
		Name:     "Closing",
		ColumnID: "ganho",
		Trigger:  models.TriggerOnEnter,
		Active:   true,
		Actions: []*models.Action{
			{ID: "call", Type: models.ActionTypeTask, Mode: models.ActionModeAutomatic, Enabled: true, Config: &models.TaskConfig{Title: "Ligar para {client_name}"}},
		},
	}
}

func TestRuntime_StartLoadsLeads(t *testing.T) {
	f := newRuntimeFixture(t)

	require.NoError(t, f.runtime.Start(t.Context()))

	lead, ok := f.runtime.Leads.Get("L1")
	require.True(t, ok)
	assert.Equal(t, "Ana", lead.Name)
	assert.Contains(t, f.crm.all(), "GET /leads")
}

func TestRuntime_RunsColumnAutomation(t *testing.T) {
	f := newRuntimeFixture(t, taskAutomation())

	require.NoError(t, f.runtime.Start(t.Context()))

	lead, _ := f.runtime.Leads.Get("L1")

	err := f.runtime.Engine.OnLeadEnteredColumn(t.Context(), flow.Entry{Lead: lead, ColumnID: "ganho", SourceColumnID: "novo"})
	require.NoError(t, err)

	assert.Contains(t, f.crm.all(), "POST /tasks")
	assert.Empty(t, f.whatsapp.all())

	column, _ := f.runtime.Leads.Column("L1")
	assert.Equal(t, "ganho", column)
}

func TestRuntime_StartRestoresPauses(t *testing.T) {
	automation := taskAutomation()
	automation.Actions = append([]*models.Action{
		{ID: "review", Type: models.ActionTypeManual, Mode: models.ActionModeManual, Enabled: true, Config: &models.ManualConfig{}},
	}, automation.Actions...)

	f := newRuntimeFixture(t, automation)

	require.NoError(t, f.store.PauseRepository().SavePause(t.Context(), &models.PauseState{
		LeadID:       "L1",
		AutomationID: "closing",
		ColumnID:     "novo",
		ActionID:     "review",
		PausedAt:     time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}))

	require.NoError(t, f.store.PauseRepository().SavePause(t.Context(), &models.PauseState{
		LeadID:       "L9",
		AutomationID: "closing",
		ColumnID:     "novo",
		ActionID:     "review",
		PausedAt:     time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC),
	}))

	require.NoError(t, f.runtime.Start(t.Context()))

	_, paused := f.runtime.Engine.Ledger().Get("L1")
	assert.True(t, paused)

	// L9 is unknown to the backend.
	_, paused = f.runtime.Engine.Ledger().Get("L9")
	assert.False(t, paused)

	_, err := f.store.PauseRepository().PauseByLead(t.Context(), "L9")
	assert.Error(t, err)
}

func TestRuntime_StartFailsWhenBackendIsDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	logger := slog.New(slog.DiscardHandler)
	backend, messenger := NewGateways(GatewayConfig{CRMURL: server.URL, WhatsAppURL: server.URL}, logger)

	runtime := NewRuntime(RuntimeDependencies{
		Persistence: file.NewPersistence(t.TempDir()),
		Backend:     backend,
		Messenger:   messenger,
		Notifier:    nopNotifier{},
		Logger:      logger,
	})
	t.Cleanup(runtime.Stop)

	err := runtime.Start(t.Context())
	assert.ErrorContains(t, err, "failed to list leads")
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Notification) error { return nil }
