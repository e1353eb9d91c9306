// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_http_requests_total",
		Help: "Total number of handled HTTP requests, by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDurationSeconds observes request latency by route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subwave_http_request_duration_seconds",
		Help:    "HTTP request latency, by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// SSEConnections tracks open server-sent-event streams.
	SSEConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subwave_sse_connections",
		Help: "Current number of open SSE streams.",
	})

	// HeartbeatClients tracks clients registered with the shutdown supervisor.
	HeartbeatClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subwave_heartbeat_clients",
		Help: "Current number of clients with a live heartbeat.",
	})
)

// RecordHTTPRequest records one handled request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(route).Observe(d.Seconds())
}
