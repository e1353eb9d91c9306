// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of queued jobs.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subwave_queue_depth",
		Help: "Current number of queued jobs.",
	})

	// JobsByStatus tracks job counts per status.
	JobsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subwave_jobs",
		Help: "Current number of jobs, by status.",
	}, []string{"status"})

	// JobTransitionsTotal counts job status transitions.
	JobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_job_transitions_total",
		Help: "Total number of job status transitions, by target status.",
	}, []string{"to"})

	// PreemptionsTotal counts force-priority preemptions.
	PreemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subwave_preemptions_total",
		Help: "Total number of force-priority preemptions of the running job.",
	})

	// QueueOpsTotal counts queue API operations by op and verdict.
	QueueOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subwave_queue_ops_total",
		Help: "Total number of queue operations, by operation and verdict.",
	}, []string{"op", "verdict"})
)

// RecordJobTransition increments the transition counter.
func RecordJobTransition(to string) {
	JobTransitionsTotal.WithLabelValues(to).Inc()
}

// RecordQueueOp increments the queue operation counter.
func RecordQueueOp(op, verdict string) {
	QueueOpsTotal.WithLabelValues(op, verdict).Inc()
}

// RecordPreemption increments the preemption counter.
func RecordPreemption() {
	PreemptionsTotal.Inc()
}
