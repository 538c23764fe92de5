// Package metrics exposes Prometheus collectors for bill and reminder activity.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billminder"

type Metrics struct {
	registry *prometheus.Registry

	reminderOutcomes *prometheus.CounterVec
	responses        *prometheus.CounterVec
	persists         *prometheus.CounterVec
	bills            prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	rateLimited  prometheus.Counter
}

// New creates collectors on a private registry, together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reminderOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_outcomes_total",
			Help:      "Reminder scheduling attempts by resulting state.",
		}, []string{"state"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_responses_total",
			Help:      "User actions on delivered reminders by action and result.",
		}, []string{"action", "result"}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_persists_total",
			Help:      "Writes of the bill collection to durable storage by result.",
		}, []string{"result"}),
		bills: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bills",
			Help:      "Number of bills in the collection after the last write.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reminderOutcomes,
		m.responses,
		m.persists,
		m.bills,
		m.httpRequests,
		m.httpDuration,
		m.rateLimited,
	)
	return m
}

func (m *Metrics) ReminderOutcome(state string) {
	if m == nil {
		return
	}
	m.reminderOutcomes.WithLabelValues(state).Inc()
}

func (m *Metrics) Response(action, result string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Persist(err error, count int) {
	if m == nil {
		return
	}
	if err != nil {
		m.persists.WithLabelValues("error").Inc()
		return
	}
	m.persists.WithLabelValues("ok").Inc()
	m.bills.Set(float64(count))
}

// HTTPRequest records a finished request. Unmatched requests use the
// route "unmatched" to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// ResponseCounter exposes a single response series, mainly for tests.
func (m *Metrics) ResponseCounter(action, result string) prometheus.Counter {
	return m.responses.WithLabelValues(action, result)
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
