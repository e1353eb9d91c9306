// SPDX-License-Identifier: MIT
package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to get metric value from a counter
func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	err := counter.Write(metric)
	require.NoError(t, err)
	return metric.GetCounter().GetValue()
}

// Helper function to get metric value from a labeled counter
func getCounterVecValue(t *testing.T, counterVec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := counterVec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	return getCounterValue(t, counter)
}

func TestIncBusDrop(t *testing.T) {
	before := getCounterVecValue(t, BusDroppedTotal, "job", "job_progress")
	IncBusDrop("job", "job_progress")
	after := getCounterVecValue(t, BusDroppedTotal, "job", "job_progress")
	assert.Equal(t, before+1, after)
}

func TestIncBusDrop_EmptyScope(t *testing.T) {
	before := getCounterVecValue(t, BusDroppedTotal, "unknown", "ping")
	IncBusDrop("", "ping")
	after := getCounterVecValue(t, BusDroppedTotal, "unknown", "ping")
	assert.Equal(t, before+1, after)
}

func TestRecordQueueOp(t *testing.T) {
	before := getCounterVecValue(t, QueueOpsTotal, "reorder", "rejected")
	RecordQueueOp("reorder", "rejected")
	after := getCounterVecValue(t, QueueOpsTotal, "reorder", "rejected")
	assert.Equal(t, before+1, after)
}

func TestRecordEscalation(t *testing.T) {
	before := getCounterVecValue(t, EscalationsTotal, "strong")
	RecordEscalation("strong")
	after := getCounterVecValue(t, EscalationsTotal, "strong")
	assert.Equal(t, before+1, after)
}

func TestObserveToolRun(t *testing.T) {
	before := getCounterVecValue(t, ToolRunsTotal, "ffmpeg", "ok")
	ObserveToolRun("ffmpeg", "ok", 125*time.Millisecond)
	after := getCounterVecValue(t, ToolRunsTotal, "ffmpeg", "ok")
	assert.Equal(t, before+1, after)
}

func TestRecordHTTPRequest_UnmatchedRoute(t *testing.T) {
	before := getCounterVecValue(t, HTTPRequestsTotal, "GET", "unmatched", "404")
	RecordHTTPRequest("GET", "", 404, 3*time.Millisecond)
	after := getCounterVecValue(t, HTTPRequestsTotal, "GET", "unmatched", "404")
	assert.Equal(t, before+1, after)
}
