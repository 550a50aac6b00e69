// Package metrics exposes batch and pool collectors on a private registry.
package metrics

import (
	"net/http"

	"jpg2png/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jpg2png"

// Metrics implements pool.Observer and records job outcomes.
type Metrics struct {
	Registry *prometheus.Registry

	Outcomes *prometheus.CounterVec
	Attempts prometheus.Histogram
	Duration *prometheus.HistogramVec
	Capacity prometheus.Gauge
	Active   prometheus.Gauge
	Pending  prometheus.Gauge
	Backlog  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Resolved jobs by result and error kind.",
		}, []string{"result", "kind"}),
		Attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_attempts",
			Help:      "Attempts made per resolved job.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time per resolved job.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"result"}),
		Capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_capacity",
			Help:      "Current worker pool capacity.",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_active_workers",
			Help:      "Jobs currently running.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_pending_jobs",
			Help:      "Jobs queued in the pool waiting for a slot.",
		}),
		Backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Submitted but unresolved jobs, the scaling signal.",
		}),
	}
	m.Registry.MustRegister(
		m.Outcomes, m.Attempts, m.Duration,
		m.Capacity, m.Active, m.Pending, m.Backlog,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records a resolved job.
func (m *Metrics) Observe(o models.JobOutcome) {
	result := "failure"
	if o.Success {
		result = "success"
	}
	m.Outcomes.WithLabelValues(result, o.ErrorKind.String()).Inc()
	m.Attempts.Observe(float64(o.Attempts))
	m.Duration.WithLabelValues(result).Observe(o.Elapsed.Seconds())
}

func (m *Metrics) CapacityChanged(capacity int) { m.Capacity.Set(float64(capacity)) }

func (m *Metrics) ActiveChanged(active, pending int) {
	m.Active.Set(float64(active))
	m.Pending.Set(float64(pending))
}

func (m *Metrics) SetBacklog(depth int) { m.Backlog.Set(float64(depth)) }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
