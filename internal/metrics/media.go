// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArtifactDurationSeconds observes generation wall time per artifact kind.
	ArtifactDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subwave_artifact_duration_seconds",
		Help:    "Wall time to generate one media artifact, by kind.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	// ArtifactsTotal counts finished artifact generations by kind and outcome.
	ArtifactsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_artifacts_total",
		Help: "Total number of artifact generation attempts, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// MediaWorkersBusy tracks generator workers currently running a tool.
	MediaWorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subwave_media_workers_busy",
		Help: "Current number of busy media generator workers.",
	})
)

// ObserveArtifact records one finished artifact generation.
func ObserveArtifact(kind, outcome string, d time.Duration) {
	ArtifactDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
	ArtifactsTotal.WithLabelValues(kind, outcome).Inc()
}
