package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// KERequestsTotal counts broker calls by operation and HTTP status
	KERequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ke_client_requests_total",
			Help: "Total number of broker requests by operation and status",
		},
		[]string{"kb_id", "operation", "status"},
	)

	// KEHandledTotal counts requests dispatched to local handlers
	KEHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ke_client_handled_total",
			Help: "Total number of broker requests dispatched to handlers",
		},
		[]string{"kb_id", "interaction", "outcome"},
	)

	// KEReconnectsTotal counts reconnect attempts
	KEReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ke_client_reconnects_total",
			Help: "Total number of reconnect attempts by outcome",
		},
		[]string{"kb_id", "outcome"},
	)

	// KEConnected is 1 while the knowledge base and its interactions are registered
	KEConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ke_client_connected",
			Help: "Whether the knowledge base is registered with the broker",
		},
		[]string{"kb_id"},
	)

	// KELoopRunning is 1 while the handle loop runs
	KELoopRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ke_client_loop_running",
			Help: "Whether the handle loop is running",
		},
		[]string{"kb_id"},
	)
)

func init() {
	prometheus.MustRegister(KERequestsTotal)
	prometheus.MustRegister(KEHandledTotal)
	prometheus.MustRegister(KEReconnectsTotal)
	prometheus.MustRegister(KEConnected)
	prometheus.MustRegister(KELoopRunning)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
