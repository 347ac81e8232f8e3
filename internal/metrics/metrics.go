// Package metrics exposes Prometheus collectors for parcel and issue activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parceltrack"

// Metrics owns a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	Registry        *prometheus.Registry
	transitions     *prometheus.CounterVec
	issueUpdates    *prometheus.CounterVec
	propagations    *prometheus.CounterVec
	cleanupFailures prometheus.Counter
	requests        *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parcel_transitions_total",
			Help:      "Parcel state changes by target state.",
		}, []string{"state"}),
		issueUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_updates_total",
			Help:      "Issue history events by kind.",
		}, []string{"kind"}),
		propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_propagation_parcels_total",
			Help:      "Per-member outcomes of container state propagation.",
		}, []string{"result"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_cleanup_failures_total",
			Help:      "Attachment objects that could not be deleted.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.transitions,
		m.issueUpdates,
		m.propagations,
		m.cleanupFailures,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ParcelTransition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IssueUpdate(kind string) {
	if m == nil {
		return
	}
	m.issueUpdates.WithLabelValues(kind).Inc()
}

func (m *Metrics) Propagation(modified, failed int) {
	if m == nil {
		return
	}
	m.propagations.WithLabelValues("modified").Add(float64(modified))
	m.propagations.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) AttachmentCleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
