// Package metrics exposes the gate's Prometheus instruments on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

type Metrics struct {
	registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	feesBilled       prometheus.Counter
	sessionsClosed   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	rateLimited  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkgate",
			Name:      "decisions_total",
			Help:      "Gate decisions by action, result and denial reason.",
		}, []string{"action", "result", "reason"}),
		decisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parkgate",
			Name:      "decision_duration_seconds",
			Help:      "Time to decide and record one scan, including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		feesBilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkgate",
			Name:      "fees_billed_total",
			Help:      "Sum of fees billed on exit, in currency units.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkgate",
			Name:      "sessions_closed_total",
			Help:      "Granted exits that closed an open session.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parkgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkgate",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Reader requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		m.decisions,
		m.decisionDuration,
		m.feesBilled,
		m.sessionsClosed,
		m.httpRequests,
		m.httpDuration,
		m.rateLimited,
	)
	return m
}

// ObserveDecision records one committed ledger entry.
func (m *Metrics) ObserveDecision(e store.LogEntry, elapsed time.Duration) {
	reason := ""
	if e.Reason != nil {
		reason = *e.Reason
	}
	m.decisions.WithLabelValues(string(e.Action), string(e.Result), reason).Inc()
	m.decisionDuration.Observe(elapsed.Seconds())

	if e.Fee != nil {
		m.sessionsClosed.Inc()
		m.feesBilled.Add(float64(*e.Fee))
	}
}

// ObserveHTTP records one served request.  route is the pattern, not the
// raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRateLimited() {
	m.rateLimited.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
