package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.StepExecuted("whatsapp", "success", 0.2)
	m.StepExecuted("whatsapp", "success", 0.1)
	m.StepExecuted("task", "error", 0.1)
	m.MessageSent(true)
	m.LeadPaused()
	m.LeadsTransferred(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.stepsExecuted.WithLabelValues("whatsapp", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stepsExecuted.WithLabelValues("task", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.messagesSent.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.leadsPaused), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.leadsTransferred), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RunStarted("api")
		m.StepExecuted("task", "success", 1)
		m.LeadMoved(false)
		m.LeadResumed("ignore")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RunStarted("worker")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `leadflow_runs_started_total{source="worker"} 1`)
}
