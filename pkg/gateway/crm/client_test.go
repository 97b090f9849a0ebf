package crm

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	body   string
}

func newTestClient(t *testing.T, status int, response string) (*Client, func() []recorded) {
	t.Helper()

	var (
		mu    sync.Mutex
		calls []recorded
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	snapshot := func() []recorded {
		mu.Lock()
		defer mu.Unlock()

		return append([]recorded(nil), calls...)
	}

	return NewClient(Config{BaseURL: server.URL}, slog.New(slog.DiscardHandler)), snapshot
}

func TestClient_UpdateLeadStatus(t *testing.T) {
	client, calls := newTestClient(t, http.StatusNoContent, "")

	require.NoError(t, client.UpdateLeadStatus(t.Context(), "L1", "proposta"))

	require.Len(t, calls(), 1)
	assert.Equal(t, http.MethodPatch, calls()[0].method)
	assert.Equal(t, "/leads/L1/status", calls()[0].path)
	assert.JSONEq(t, `{"status":"proposta"}`, calls()[0].body)
}

func TestClient_UpdateLeadSendsOnlyPatchedFields(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK, "{}")

	funnel := "nurture"
	require.NoError(t, client.UpdateLead(t.Context(), "L1", models.LeadPatch{FunnelID: &funnel}))

	assert.Equal(t, "/leads/L1", calls()[0].path)
	assert.JSONEq(t, `{"funnel_id":"nurture"}`, calls()[0].body)
}

func TestClient_AddInteractionNoteAndCreateTask(t *testing.T) {
	client, calls := newTestClient(t, http.StatusCreated, `{"id":"x"}`)

	require.NoError(t, client.AddInteractionNote(t.Context(), "L1", &models.Note{ID: "n1", LeadID: "L1", Text: "hello"}))
	require.NoError(t, client.CreateTask(t.Context(), &models.Task{ID: "t1", LeadID: "L1", Title: "Call"}))

	require.Len(t, calls(), 2)
	assert.Equal(t, "/leads/L1/notes", calls()[0].path)
	assert.Equal(t, "/tasks", calls()[1].path)

	var task models.Task
	require.NoError(t, json.Unmarshal([]byte(calls()[1].body), &task))
	assert.Equal(t, "Call", task.Title)
}

func TestClient_ListLeads(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"bare array", `[{"id":"L1","name":"Ana","status":"novo"}]`},
		{"data envelope", `{"data":[{"id":"L1","name":"Ana","status":"novo"}],"total":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.StatusOK, tt.response)

			leads, err := client.ListLeads(t.Context())
			require.NoError(t, err)
			require.Len(t, leads, 1)
			assert.Equal(t, "Ana", leads[0].Name)
			assert.Equal(t, "novo", leads[0].Status)
		})
	}
}

func TestClient_Members(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK, `[{"id":"u1","name":"Bia","phone":"5511"}]`)

	members, err := client.Members(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "/team/members", calls()[0].path)
	assert.Equal(t, []*models.TeamMember{{ID: "u1", Name: "Bia", Phone: "5511"}}, members)
}

func TestClient_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, http.StatusConflict, `{"error":"stale version"}`)

	err := client.UpdateLeadStatus(t.Context(), "L1", "x")
	require.ErrorIs(t, err, ErrBackend)
	assert.Contains(t, err.Error(), "stale version")

	_, err = client.ListLeads(t.Context())
	assert.ErrorIs(t, err, ErrBackend)
}

func TestClient_UnexpectedListPayload(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, `{"leads":"nope"}`)

	_, err := client.ListLeads(t.Context())
	assert.ErrorIs(t, err, ErrBackend)
}
