// Package metrics exposes Prometheus metrics for authentication outcomes
// and job runs.
package metrics

import (
	"context"
	"net/http"

	"github.com/cateringhub/backoffice/internal/server/jobs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backoffice"

// Authentication outcomes.
const (
	AuthOK         = "ok"
	AuthRefreshed  = "refreshed"
	AuthMissing    = "missing_credentials"
	AuthInvalid    = "invalid"
	AuthRefreshErr = "refresh_failed"
	AuthDisabled   = "disabled"
)

// Metrics owns a private registry so tests and multiple apps in one process
// do not collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	authOutcomes *prometheus.CounterVec
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobItems     *prometheus.CounterVec
	jobLastRun   *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		authOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Authenticated requests by outcome.",
		}, []string{"outcome"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Job runs by kind and status.",
		}, []string{"kind", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job run duration.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"kind"}),
		jobItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "items_total",
			Help:      "Items processed by jobs: tokens removed, occurrences generated.",
		}, []string{"kind"}),
		jobLastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"kind"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// AuthOutcome counts one authentication attempt.
func (m *Metrics) AuthOutcome(outcome string) {
	m.authOutcomes.WithLabelValues(outcome).Inc()
}

// Record implements jobs.Sink.
func (m *Metrics) Record(_ context.Context, res jobs.Result) error {
	kind := string(res.Kind)
	m.jobRuns.WithLabelValues(kind, string(res.Status)).Inc()
	if res.Status == jobs.StatusSkipped {
		return nil
	}
	m.jobDuration.WithLabelValues(kind).Observe(res.Duration().Seconds())
	if res.Status == jobs.StatusSucceeded {
		m.jobItems.WithLabelValues(kind).Add(float64(res.Count))
		m.jobLastRun.WithLabelValues(kind).Set(float64(res.Finished.Unix()))
	}
	return nil
}
