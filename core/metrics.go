package core

import "github.com/prometheus/client_golang/prometheus"

const prometheusNamespace = "koinos_client"

var RequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: prometheusNamespace,
	Name:      "rpc_requests_total",
	Help:      "Number of RPC requests sent to nodes",
}, []string{"node", "method", "outcome"})

var FailoverCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: prometheusNamespace,
	Name:      "node_failovers_total",
	Help:      "Number of times the provider switched to the next node",
}, []string{"from", "to"})

var TransactionWaitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: prometheusNamespace,
	Name:      "transaction_waits_total",
	Help:      "Results of waiting for transaction inclusion",
}, []string{"outcome"})

var TransactionPollAttemptsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: prometheusNamespace,
	Name:      "transaction_poll_attempts",
	Help:      "Poll attempts used by the last finished transaction wait",
})

// Collectors returns every metric of this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsCounter,
		FailoverCounter,
		TransactionWaitCounter,
		TransactionPollAttemptsGauge,
	}
}
