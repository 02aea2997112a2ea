package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	EventsRecorded       *prometheus.CounterVec
	EventRecordFailures  *prometheus.CounterVec
	Resolutions          *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	TelephonyFallbacks   *prometheus.CounterVec
	LatencyFailures      prometheus.Counter
	PersistenceDuration  *prometheus.HistogramVec
	LifecyclePublishErrs prometheus.Counter

	registry *prometheus.Registry
}

// New registers every collector on a fresh registry. Each instance owns its
// registry so tests can build as many as they need.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_events_recorded_total",
			Help: "Total number of call events appended to the event log",
		}, []string{"type"}),
		EventRecordFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_event_record_failures_total",
			Help: "Total number of call events that could not be appended",
		}, []string{"type"}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_resolutions_total",
			Help: "Call resolver outcomes by matching tier",
		}, []string{"tier"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_status_transitions_total",
			Help: "Total number of call status transitions",
		}, []string{"from", "to"}),
		TelephonyFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "telephony_fallback_responses_total",
			Help: "Total number of apology+hangup responses returned to the telephony provider",
		}, []string{"endpoint"}),
		LatencyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "latency_aggregation_failures_total",
			Help: "Total number of failed latency stat refreshes",
		}),
		PersistenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "persistence_operation_duration_seconds",
			Help:    "Time taken for event log and call record operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		LifecyclePublishErrs: f.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_publish_failures_total",
			Help: "Total number of lifecycle changes that could not be published",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
