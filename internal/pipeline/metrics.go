package pipeline

import (
	"net/http"
	"time"

	"github.com/hakim/autopent/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one pipeline. Every method is a
// no-op on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	stageDuration   *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	toolInvocations *prometheus.CounterVec
	reconSources    *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autopent_stage_duration_seconds",
				Help:    "Wall time of each pipeline stage in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopent_runs_total",
				Help: "Pipeline runs by terminal state",
			},
			[]string{"state"},
		),
		toolInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopent_tool_invocations_total",
				Help: "Scanner invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		reconSources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopent_recon_sources_total",
				Help: "Reconnaissance lookups by source and status",
			},
			[]string{"source", "status"},
		),
	}

	m.Registry.MustRegister(m.stageDuration, m.runsTotal, m.toolInvocations, m.reconSources)
	return m
}

// ObserveStage records the duration of one stage.
func (m *Metrics) ObserveStage(stage models.RunState, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// RunFinished counts a run by the state it ended in. Cancelled runs are
// counted as "cancelled".
func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(state).Inc()
}

// ToolInvoked counts one scanner invocation.
func (m *Metrics) ToolInvoked(out models.ScanOutput) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(out.Tool, string(out.Kind)).Inc()
}

// SourceObserved counts one recon entry.
func (m *Metrics) SourceObserved(entry models.SourceResult) {
	if m == nil {
		return
	}
	m.reconSources.WithLabelValues(entry.Source, string(entry.Status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
