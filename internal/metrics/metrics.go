// Package metrics holds the Prometheus collectors for link handshakes,
// token exchanges and transaction imports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinkTokenRequests counts link token issuances by mode and status
	LinkTokenRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plaid_link_token_requests_total",
			Help: "Total number of link token requests by mode and status",
		},
		[]string{"mode", "status"},
	)

	// TokenExchanges counts public token exchanges by status
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plaid_link_token_exchanges_total",
			Help: "Total number of public token exchanges by status",
		},
		[]string{"status"},
	)

	// PlaidLatency tracks the latency of Plaid API calls
	PlaidLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plaid_api_latency_seconds",
			Help:    "Latency of Plaid API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// FlowErrors counts client flow failures by kind
	FlowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plaid_link_flow_errors_total",
			Help: "Total number of link flow errors by kind",
		},
		[]string{"kind", "timeout"},
	)

	// ImportedTransactions counts transactions written by imports
	ImportedTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plaid_imported_transactions_total",
			Help: "Total number of imported transactions by outcome",
		},
		[]string{"outcome"},
	)
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObservePlaid records the duration of a Plaid call started at start.
func ObservePlaid(endpoint string, start time.Time) {
	PlaidLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
