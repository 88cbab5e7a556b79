// Package metrics exposes Prometheus collectors for the encoding pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"townhall/internal/queue"
)

const namespace = "townhall"

// Job outcomes recorded by the worker.
const (
	OutcomeCompleted = "completed"
	OutcomeRequeued  = "requeued"
	OutcomeFailed    = "failed"
)

// Processing paths taken by a job.
const (
	PathEncoder  = "encoder"
	PathFallback = "fallback"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	jobsProcessed    *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	enqueued         *prometheus.CounterVec
	queueJobs        *prometheus.GaugeVec
	encoderAvailable prometheus.Gauge
	inFlight         prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_processed_total",
			Help:      "Encoding job attempts resolved by the worker.",
		}, []string{"path", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock time spent on one job attempt.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}, []string{"path"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueue_requests_total",
			Help:      "Enqueue requests by result.",
		}, []string{"result"}),
		queueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Jobs per status at the last stats sample.",
		}, []string{"status"}),
		encoderAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "available",
			Help:      "1 when the last encoder availability probe succeeded.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being processed by this worker.",
		}),
	}
	m.registry.MustRegister(
		m.jobsProcessed,
		m.jobDuration,
		m.enqueued,
		m.queueJobs,
		m.encoderAvailable,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveJob records one resolved job attempt.
func (m *Metrics) ObserveJob(path, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(path, outcome).Inc()
	m.jobDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveEnqueue records whether an enqueue created a job or was a duplicate.
func (m *Metrics) ObserveEnqueue(created bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if created {
		result = "created"
	}
	m.enqueued.WithLabelValues(result).Inc()
}

// SetQueueStats publishes a QueueStats snapshot as per-status gauges.
func (m *Metrics) SetQueueStats(stats queue.Stats) {
	if m == nil {
		return
	}
	for _, status := range queue.AllStatuses() {
		m.queueJobs.WithLabelValues(string(status)).Set(float64(stats.Count(status)))
	}
}

// SetEncoderAvailable records the result of the latest availability probe.
func (m *Metrics) SetEncoderAvailable(available bool) {
	if m == nil {
		return
	}
	if available {
		m.encoderAvailable.Set(1)
		return
	}
	m.encoderAvailable.Set(0)
}

// SetInFlight records the number of jobs the worker currently holds.
func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}
