// Package observability holds the Prometheus metric set for the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors shared by the session manager and the HTTP
// request layer. One instance is built per process and registered on a
// dedicated registry, so tests can construct independent instances.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	Updates         *prometheus.CounterVec
	KeepaliveTicks  prometheus.Counter
	KeepaliveErrors prometheus.Counter
	CacheFallbacks  prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New builds and registers the metric set.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attempts_sessions_active",
			Help: "Number of sessions with a live keep-alive loop.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attempts_sessions_created_total",
			Help: "Total sessions created.",
		}),
		Updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attempts_updates_total",
				Help: "Progress updates by result.",
			},
			[]string{"result"}, // accepted, rejected, error
		),
		KeepaliveTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attempts_keepalive_ticks_total",
			Help: "Liveness touches performed by keep-alive loops.",
		}),
		KeepaliveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attempts_keepalive_errors_total",
			Help: "Transient store errors swallowed by keep-alive loops.",
		}),
		CacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attempts_cache_fallbacks_total",
			Help: "Reads that fell back to the durable store after a cache failure.",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attempts_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attempts_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.Registry.MustRegister(
		m.SessionsActive,
		m.SessionsCreated,
		m.Updates,
		m.KeepaliveTicks,
		m.KeepaliveErrors,
		m.CacheFallbacks,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}
