package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DecisionsTotal counts evaluated transactions by final status
var DecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aml_decisions_total",
		Help: "Total number of transactions evaluated by final status",
	},
	[]string{"status"},
)

// EvaluationLatency records end-to-end evaluation latency
var EvaluationLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "aml_evaluation_latency_seconds",
		Help:    "Latency in seconds to evaluate a single transaction",
		Buckets: prometheus.DefBuckets,
	},
)

// Rule engine metrics
var (
	RuleTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aml_rule_triggers_total",
			Help: "Number of times a rule triggered",
		},
		[]string{"rule"},
	)

	RuleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aml_rule_failures_total",
			Help: "Number of rule evaluations that could not complete",
		},
		[]string{"rule", "kind"},
	)
)

// Graph, ledger and notification metrics
var (
	GraphChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aml_graph_checks_total",
			Help: "Circular-flow checks by outcome",
		},
		[]string{"outcome"},
	)

	GraphIngestFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aml_graph_ingest_failures_total",
			Help: "Transfer edges that could not be written to the graph store",
		},
	)

	LedgerAppendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aml_ledger_append_latency_seconds",
			Help:    "Latency of audit ledger appends",
			Buckets: prometheus.DefBuckets,
		},
	)

	LedgerAppendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aml_ledger_append_failures_total",
			Help: "Audit ledger appends that failed",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aml_notifications_total",
			Help: "Alert notifications by sink and result",
		},
		[]string{"sink", "result"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aml_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aml_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(DecisionsTotal, EvaluationLatency)
	prometheus.MustRegister(RuleTriggers, RuleFailures)
	prometheus.MustRegister(GraphChecks, GraphIngestFailures, LedgerAppendLatency, LedgerAppendFailures, NotificationsTotal)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
}
