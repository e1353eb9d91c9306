// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDurationSeconds observes wall time per pipeline stage.
	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subwave_stage_duration_seconds",
		Help:    "Wall time per pipeline stage.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"stage"})

	// SegmentsProcessedTotal counts transcribed segments by final verdict.
	SegmentsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_segments_processed_total",
		Help: "Total number of processed segments, by final verdict.",
	}, []string{"verdict"})

	// SegmentRetriesTotal counts segment re-runs by cause.
	SegmentRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_segment_retries_total",
		Help: "Total number of segment re-runs, by cause.",
	}, []string{"cause"})

	// EscalationsTotal counts separation tier upgrades by target tier.
	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_escalations_total",
		Help: "Total number of separation tier escalations, by target tier.",
	}, []string{"tier"})

	// CircuitBreaksTotal counts circuit trips by applied action.
	CircuitBreaksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_circuit_breaks_total",
		Help: "Total number of circuit breaks, by applied on-break action.",
	}, []string{"action"})

	// CheckpointWritesTotal counts checkpoint persists.
	CheckpointWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subwave_checkpoint_writes_total",
		Help: "Total number of checkpoint writes.",
	})

	// ResumesTotal counts restarts from checkpoint.
	ResumesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subwave_resumes_total",
		Help: "Total number of restarts resumed from a checkpoint.",
	})
)

// ObserveStageDuration records the wall time of one completed stage.
func ObserveStageDuration(stage string, d time.Duration) {
	StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSegment increments the processed-segment counter.
func RecordSegment(verdict string) {
	SegmentsProcessedTotal.WithLabelValues(verdict).Inc()
}

// RecordSegmentRetry increments the retry counter.
func RecordSegmentRetry(cause string) {
	SegmentRetriesTotal.WithLabelValues(cause).Inc()
}

// RecordEscalation increments the escalation counter.
func RecordEscalation(tier string) {
	EscalationsTotal.WithLabelValues(tier).Inc()
}

// RecordCircuitBreak increments the circuit break counter.
func RecordCircuitBreak(action string) {
	CircuitBreaksTotal.WithLabelValues(action).Inc()
}
