package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ScepterCode/project-nest-api/internal/authz"
)

var (
	registerOnce        sync.Once
	authzDecisionsTotal *prometheus.CounterVec
	mutationsTotal      *prometheus.CounterVec
	requestsTotal       *prometheus.CounterVec
	latencySeconds      *prometheus.HistogramVec
	errorsTotal         *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		authzDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization gate decisions by action and outcome.",
		}, []string{"action", "outcome", "reason"})

		mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gated_mutations_total",
			Help: "Gated mutation attempts by action and outcome.",
		}, []string{"action", "outcome"})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(authzDecisionsTotal, mutationsTotal, requestsTotal, latencySeconds, errorsTotal)
	})
}

// ObserveAuthzDecision counts a gate decision.
func ObserveAuthzDecision(action authz.Action, decision authz.Decision) {
	RegisterMetrics()
	outcome := "allow"
	reason := ""
	if !decision.Allowed {
		outcome = "deny"
		reason = string(decision.Reason)
	}
	authzDecisionsTotal.WithLabelValues(action.Name, outcome, reason).Inc()
}

// ObserveMutation counts a gated mutation attempt outcome.
func ObserveMutation(action, outcome string) {
	RegisterMetrics()
	mutationsTotal.WithLabelValues(action, outcome).Inc()
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}
