// Package metrics exposes Prometheus counters for automation runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	registry prometheus.Gatherer

	runsStarted      *prometheus.CounterVec
	stepsExecuted    *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	leadsPaused      prometheus.Counter
	leadsResumed     *prometheus.CounterVec
	leadsMoved       *prometheus.CounterVec
	leadsTransferred prometheus.Counter
	stepDuration     *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	return NewWithRegistry(registry, registry)
}

func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		registry: gatherer,
		runsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_runs_started_total",
			Help: "Automation runs started, by entry point",
		}, []string{"source"}),
		stepsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_steps_executed_total",
			Help: "Actions executed, by type and result",
		}, []string{"action_type", "status"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_whatsapp_messages_total",
			Help: "WhatsApp messages sent, by result",
		}, []string{"status"}),
		leadsPaused: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadflow_leads_paused_total",
			Help: "Leads parked at a manual action",
		}),
		leadsResumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_leads_resumed_total",
			Help: "Pause resolutions, by decision",
		}, []string{"decision"}),
		leadsMoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_leads_moved_total",
			Help: "Stage moves performed by automations, by result",
		}, []string{"status"}),
		leadsTransferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadflow_batch_leads_transferred_total",
			Help: "Leads moved by batch transfers",
		}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadflow_step_duration_seconds",
			Help:    "Action execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 3, 5, 10},
		}, []string{"action_type"}),
	}
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted(source string) {
	if m == nil {
		return
	}

	m.runsStarted.WithLabelValues(source).Inc()
}

func (m *Metrics) StepExecuted(actionType, status string, seconds float64) {
	if m == nil {
		return
	}

	m.stepsExecuted.WithLabelValues(actionType, status).Inc()
	m.stepDuration.WithLabelValues(actionType).Observe(seconds)
}

func (m *Metrics) MessageSent(ok bool) {
	if m == nil {
		return
	}

	m.messagesSent.WithLabelValues(status(ok)).Inc()
}

func (m *Metrics) LeadPaused() {
	if m == nil {
		return
	}

	m.leadsPaused.Inc()
}

func (m *Metrics) LeadResumed(decision string) {
	if m == nil {
		return
	}

	m.leadsResumed.WithLabelValues(decision).Inc()
}

func (m *Metrics) LeadMoved(ok bool) {
	if m == nil {
		return
	}

	m.leadsMoved.WithLabelValues(status(ok)).Inc()
}

func (m *Metrics) LeadsTransferred(n int) {
	if m == nil {
		return
	}

	m.leadsTransferred.Add(float64(n))
}

func status(ok bool) string {
	if ok {
		return "success"
	}

	return "error"
}
