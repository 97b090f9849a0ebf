package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/mocks"
	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/registry"
	"github.com/dukex/leadflow/pkg/services"
	"github.com/dukex/leadflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app   *fiber.App
	store *file.Persistence
	bus   *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-1").Maybe()

	reg := registry.NewRegistry(slog.New(slog.DiscardHandler))
	require.NoError(t, registry.RegisterNative(reg))

	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(
		services.NewAutomation(store, reg, validate),
		services.NewLead(store, bus),
		validate,
		reg,
	)

	app := fiber.New()
	handlers.Routes(app)

	return &testAPI{app: app, store: store, bus: bus}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, ok := body.(string)
		if !ok {
			data, err := json.Marshal(body)
			require.NoError(t, err)

			raw = string(data)
		}

		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

const automationJSON = `{
	"name": "Welcome",
	"column_id": "novo",
	"trigger": "on_enter",
	"active": true,
	"actions": [
		{"id": "hello", "type": "whatsapp", "config": {"message": "Olá {client_name}"}},
		{"id": "review", "type": "manual", "mode": "manual"},
		{"id": "call", "type": "task", "delay": 30, "config": {"title": "Ligar"}}
	]
}`

func TestAPIHandlers_HealthCheck(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_ActionTypes(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodGet, "/action-types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var descriptors []registry.Descriptor
	require.NoError(t, json.Unmarshal(body, &descriptors))
	assert.Len(t, descriptors, len(models.ActionTypes))
}

func TestAPIHandlers_AutomationLifecycle(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodPut, "/automations/welcome", automationJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var saved models.Automation
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, "welcome", saved.ID)
	require.Len(t, saved.Actions, 3)
	assert.True(t, saved.Actions[0].Enabled)
	assert.Equal(t, &models.DelayConfig{Value: 30, Unit: models.DelayUnitMinutes}, saved.Actions[2].DelayConfig)

	resp, body = api.do(t, http.MethodGet, "/automations/welcome", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"Welcome"`)

	resp, body = api.do(t, http.MethodGet, "/automations?column_id=novo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed []*models.Automation
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Len(t, listed, 1)

	resp, body = api.do(t, http.MethodGet, "/automations?column_id=ganho", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = api.do(t, http.MethodDelete, "/automations/welcome", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/automations/welcome", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "automation_not_found")
}

func TestAPIHandlers_CreateAutomation(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodPost, "/automations", automationJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var saved models.Automation
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.NotEmpty(t, saved.ID)
}

func TestAPIHandlers_SaveAutomationErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest},
		{"unknown action type", `{"name":"x","column_id":"c","actions":[{"id":"a","type":"sms"}]}`, http.StatusBadRequest},
		{"missing column", `{"name":"x","actions":[]}`, http.StatusBadRequest},
		{"schema violation", `{"name":"x","column_id":"c","actions":[{"id":"a","type":"move_lead","config":{}}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := setupTestApp(t)

			resp, body := api.do(t, http.MethodPut, "/automations/x", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}
}

func TestAPIHandlers_EnterColumn(t *testing.T) {
	api := setupTestApp(t)

	api.bus.On("Publish", mock.Anything, "L1", mock.MatchedBy(func(event events.LeadEnteredColumn) bool {
		return event.Lead.ID == "L1" && event.Lead.Name == "Ana" && event.Lead.Status == "novo" &&
			event.ColumnID == "triagem" && event.SourceColumnID == "novo"
	})).Return(nil).Once()

	resp, body := api.do(t, http.MethodPost, "/leads/L1/enter", map[string]any{
		"lead":             map[string]any{"name": "Ana"},
		"column_id":        "triagem",
		"source_column_id": "novo",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	api.bus.AssertExpectations(t)
}

func TestAPIHandlers_EnterColumnAsksForStart(t *testing.T) {
	api := setupTestApp(t)

	resp, _ := api.do(t, http.MethodPut, "/automations/welcome", automationJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/leads/L1/enter", map[string]any{"column_id": "novo"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var choice web.StartChoiceResponse
	require.NoError(t, json.Unmarshal(body, &choice))
	assert.Equal(t, "welcome", choice.AutomationID)
	require.Len(t, choice.Candidates, 3)
	assert.Equal(t, "hello", choice.Candidates[0].ID)
	assert.Equal(t, models.ActionTypeManual, choice.Candidates[1].Type)

	api.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestAPIHandlers_EnterColumnValidation(t *testing.T) {
	api := setupTestApp(t)

	resp, _ := api.do(t, http.MethodPost, "/leads/L1/enter", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/leads/L1/enter", map[string]any{
		"lead":      map[string]any{"id": "L2"},
		"column_id": "novo",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_CurrentAction(t *testing.T) {
	api := setupTestApp(t)

	require.NoError(t, api.store.CurrentActionRepository().SetCurrentAction(t.Context(), "L1", "call"))

	resp, body := api.do(t, http.MethodGet, "/leads/L1/current-action", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"lead_id":"L1","action_id":"call","idle":false}`, string(body))

	resp, body = api.do(t, http.MethodGet, "/leads/L2/current-action", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"lead_id":"L2","idle":true}`, string(body))
}

func TestAPIHandlers_Pauses(t *testing.T) {
	api := setupTestApp(t)

	resp, _ := api.do(t, http.MethodPut, "/automations/welcome", automationJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, api.store.PauseRepository().SavePause(t.Context(), &models.PauseState{
		LeadID:       "L1",
		AutomationID: "welcome",
		ColumnID:     "novo",
		ActionID:     "review",
		PausedAt:     time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}))

	resp, body := api.do(t, http.MethodGet, "/pauses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pauses []*models.PauseState
	require.NoError(t, json.Unmarshal(body, &pauses))
	require.Len(t, pauses, 1)
	assert.Equal(t, "review", pauses[0].ActionID)

	api.bus.On("Publish", mock.Anything, "L1", mock.MatchedBy(func(event events.PauseResolutionRequested) bool {
		return event.Decision == models.DecisionIgnore && event.Resume.Kind == models.ResumeStage
	})).Return(nil).Once()

	resp, body = api.do(t, http.MethodPost, "/pauses/L1/resolve", map[string]any{
		"decision": "ignore",
		"resume":   map[string]any{"kind": "stage", "column_id": "ganho"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	resp, _ = api.do(t, http.MethodPost, "/pauses/L1/resolve", map[string]any{
		"decision": "execute",
		"resume":   map[string]any{"kind": "action", "action_id": "review"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/pauses/L1/resolve", map[string]any{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodPost, "/pauses/L9/resolve", map[string]any{"decision": "ignore"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "pause_not_found")

	api.bus.AssertExpectations(t)
}

func TestAPIHandlers_BatchTransfers(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodGet, "/batch-transfers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}
