// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

const namespace = "patchradar"

// Recorder implements ports.Metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	taskDuration *prometheus.HistogramVec
	taskErrors   *prometheus.CounterVec
	admissions   *prometheus.CounterVec
	enrichment   *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
}

var _ ports.Metrics = (*Recorder)(nil)

// New registers the pipeline collectors plus the Go runtime collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of scheduled tasks in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"task"},
		),
		taskErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_errors_total",
				Help:      "Total number of failed scheduled tasks",
			},
			[]string{"task"},
		),
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Ingestion gate decisions by reason",
			},
			[]string{"reason"},
		),
		enrichment: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_jobs_total",
				Help:      "Processed enrichment jobs by resulting status",
			},
			[]string{"status"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Push delivery attempts by endpoint kind and outcome",
			},
			[]string{"kind", "status"},
		),
	}
}

// ObserveTask records a task run.
func (r *Recorder) ObserveTask(task string, elapsed time.Duration, err error) {
	r.taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
	if err != nil {
		r.taskErrors.WithLabelValues(task).Inc()
	}
}

// CountAdmission records a gate decision.
func (r *Recorder) CountAdmission(reason string) {
	r.admissions.WithLabelValues(reason).Inc()
}

// CountEnrichment records a processed job.
func (r *Recorder) CountEnrichment(status domain.JobStatus) {
	r.enrichment.WithLabelValues(string(status)).Inc()
}

// CountDelivery records one endpoint delivery.
func (r *Recorder) CountDelivery(kind domain.EndpointKind, status domain.DeliveryStatus) {
	r.deliveries.WithLabelValues(string(kind), string(status)).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
