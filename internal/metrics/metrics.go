// Package metrics exposes Prometheus collectors for the HTTP API, case
// analysis and natural-language queries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinsight"

var (
	// HTTPRequestsTotal counts requests by method, route template and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds is request latency by route template.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12), // 1ms to ~60s, analysis calls are slow
		},
		[]string{"method", "route"},
	)

	// AnalysesTotal counts case analyses by outcome (parsed, unparsed, failed).
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of case analyses by outcome.",
		},
		[]string{"outcome"},
	)

	// QueriesTotal counts natural-language queries by resolved intent kind.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of natural-language queries by intent kind.",
		},
		[]string{"kind"},
	)

	// QueryErrorsTotal counts queries answered with an error message.
	QueryErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Total number of queries that failed during resolution.",
		},
	)

	// PromptTokens observes the size of prompts sent to the model.
	PromptTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_prompt_tokens",
			Help:      "Prompt size in tokens sent to the language model.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		},
	)

	// SessionsActive tracks sessions issued minus sessions revoked or expired in this process.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions issued minus sessions revoked or expired in this process.",
		},
	)

	// LoginFailuresTotal counts rejected logins by reason.
	LoginFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_failures_total",
			Help:      "Total number of rejected logins by reason.",
		},
		[]string{"reason"},
	)
)
