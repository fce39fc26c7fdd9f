// Package metrics exposes Prometheus metrics for the Tailwag hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the hub's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	GrantsIssued     prometheus.Counter
	IssueFailures    *prometheus.CounterVec
	AuthAttempts     *prometheus.CounterVec
	KeyFetches       prometheus.Counter
	RequestDurations *prometheus.HistogramVec
}

// New creates and registers the hub metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		GrantsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tailwag_license_grants_issued_total",
			Help: "Total number of license grants issued.",
		}),
		IssueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailwag_license_issue_failures_total",
			Help: "License issuance failures by cause.",
		}, []string{"cause"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tailwag_auth_attempts_total",
			Help: "Online authentication attempts by outcome.",
		}, []string{"outcome"}),
		KeyFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tailwag_license_key_fetches_total",
			Help: "Total verification key distribution requests.",
		}),
		RequestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tailwag_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	registry.MustRegister(
		m.GrantsIssued,
		m.IssueFailures,
		m.AuthAttempts,
		m.KeyFetches,
		m.RequestDurations,
	)

	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
