// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the subwave daemon.
//
// All metric vars are package-level and registered via promauto. Label
// cardinality stays bounded: no job ids or request ids in labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusDroppedTotal counts shed events by channel scope and kind.
	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_bus_dropped_total",
		Help: "Total number of events shed for slow subscribers, by channel scope and kind.",
	}, []string{"scope", "kind"})

	// BusDisconnectsTotal counts subscribers force-disconnected on overflow.
	BusDisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_bus_disconnects_total",
		Help: "Total number of subscribers disconnected after non-droppable overflow, by channel scope.",
	}, []string{"scope"})

	// BusSubscribers tracks currently connected subscribers.
	BusSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subwave_bus_subscribers",
		Help: "Current number of subscribers, by channel scope.",
	}, []string{"scope"})

	// BusPublishedTotal counts published events by kind.
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_bus_published_total",
		Help: "Total number of published events, by kind.",
	}, []string{"kind"})
)

// IncBusDrop records a shed event.
func IncBusDrop(scope, kind string) {
	if scope == "" {
		scope = "unknown"
	}
	BusDroppedTotal.WithLabelValues(scope, kind).Inc()
}

// IncBusDisconnect records a forced subscriber disconnect.
func IncBusDisconnect(scope string) {
	BusDisconnectsTotal.WithLabelValues(scope).Inc()
}

// IncBusPublished records a published event.
func IncBusPublished(kind string) {
	BusPublishedTotal.WithLabelValues(kind).Inc()
}
