package rpcclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainindexor_rpcclient_requests_total",
			Help: "Total number of RPC requests by method and transport",
		},
		[]string{"method", "transport"},
	)

	rpcErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainindexor_rpcclient_errors_total",
			Help: "Total number of RPC errors by method and transport",
		},
		[]string{"method", "transport"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainindexor_rpcclient_request_duration_seconds",
			Help:    "Duration of RPC requests by method and transport",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "transport"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainindexor_rpcclient_retries_total",
			Help: "Total number of retried RPC operations",
		},
		[]string{"operation"},
	)
)

func RPCMethodInc(method, transport string)   { rpcRequests.WithLabelValues(method, transport).Inc() }
func RPCMethodError(method, transport string) { rpcErrors.WithLabelValues(method, transport).Inc() }
func RPCMethodDuration(method, transport string, d time.Duration) {
	rpcDuration.WithLabelValues(method, transport).Observe(d.Seconds())
}
func RPCRetryInc(operation string) { rpcRetries.WithLabelValues(operation).Inc() }
