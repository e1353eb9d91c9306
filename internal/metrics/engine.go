// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ToolRunsTotal counts external tool invocations by tool and outcome.
	ToolRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_tool_runs_total",
		Help: "Total number of external tool invocations, by tool and outcome.",
	}, []string{"tool", "outcome"})

	// ToolDurationSeconds observes external tool wall time.
	ToolDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subwave_tool_duration_seconds",
		Help:    "Wall time of external tool invocations, by tool.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
	}, []string{"tool"})

	// ModelLoadsTotal counts model loads by kind and outcome.
	ModelLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_model_loads_total",
		Help: "Total number of model loads, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// ModelEvictionsTotal counts supervisor evictions by kind.
	ModelEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_model_evictions_total",
		Help: "Total number of model evictions, by kind.",
	}, []string{"kind"})

	// ModelsResident tracks currently loaded models.
	ModelsResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subwave_models_resident",
		Help: "Current number of resident models.",
	})
)

// ObserveToolRun records one finished tool invocation.
func ObserveToolRun(tool, outcome string, d time.Duration) {
	ToolRunsTotal.WithLabelValues(tool, outcome).Inc()
	ToolDurationSeconds.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordModelLoad increments the model load counter.
func RecordModelLoad(kind, outcome string) {
	ModelLoadsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordModelEviction increments the eviction counter.
func RecordModelEviction(kind string) {
	ModelEvictionsTotal.WithLabelValues(kind).Inc()
}
