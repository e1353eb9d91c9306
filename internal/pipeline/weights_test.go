// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/types"
)

func weightSum(w Weights) float64 {
	return w.Extract + w.Split + w.BGMDetect + w.Separate + w.Transcribe +
		w.Retry + w.Align + w.Render + w.Complete
}

func TestComputeWeightsBaseline(t *testing.T) {
	w := ComputeWeights(0, 0, true)

	assert.InDelta(t, 5, w.Extract, 1e-9)
	assert.InDelta(t, 5, w.Split, 1e-9)
	assert.InDelta(t, 0, w.Separate, 1e-9)
	assert.InDelta(t, 0, w.Retry, 1e-9)
	assert.InDelta(t, 10, w.Align, 1e-9)
	assert.InDelta(t, 10, w.Render, 1e-9)
	assert.InDelta(t, 5, w.Complete, 1e-9)
	assert.InDelta(t, 65, w.Transcribe, 1e-9)
	assert.InDelta(t, 100, weightSum(w), 1e-9)
}

func TestComputeWeightsNoAlignment(t *testing.T) {
	w := ComputeWeights(0, 0, false)
	assert.InDelta(t, 0, w.Align, 1e-9)
	assert.InDelta(t, 75, w.Transcribe, 1e-9)
	assert.InDelta(t, 100, weightSum(w), 1e-9)
}

func TestComputeWeightsSeparationShare(t *testing.T) {
	w := ComputeWeights(0.5, 0, true)
	assert.InDelta(t, 7.5, w.Separate, 1e-9)
	assert.InDelta(t, 100, weightSum(w), 1e-9)
	assert.GreaterOrEqual(t, w.Transcribe, float64(transcribeWeightMin))
}

func TestComputeWeightsTranscribeFloor(t *testing.T) {
	// Full separation, full retry and alignment would claim 45 points;
	// the transcribe floor forces the variable shares down to 35.
	w := ComputeWeights(1, 1, true)

	assert.InDelta(t, float64(transcribeWeightMin), w.Transcribe, 1e-9)
	assert.InDelta(t, 100, weightSum(w), 1e-9)
	assert.Less(t, w.Separate, float64(weightSeparateMax))
	assert.Less(t, w.Retry, float64(weightRetryMax))
	assert.Less(t, w.Align, float64(weightAlign))

	// Scaling is proportional.
	require.Positive(t, w.Retry)
	assert.InDelta(t, 15.0/20.0, w.Separate/w.Retry, 1e-9)
}

func TestComputeWeightsClampsFractions(t *testing.T) {
	w := ComputeWeights(3, -1, false)
	assert.InDelta(t, float64(weightSeparateMax), w.Separate, 1e-9)
	assert.InDelta(t, 0, w.Retry, 1e-9)
	assert.InDelta(t, 100, weightSum(w), 1e-9)
}

func TestWeightsCompletedBefore(t *testing.T) {
	w := ComputeWeights(0.5, 0.25, true)

	assert.InDelta(t, 0, w.CompletedBefore(types.JobPhaseExtract), 1e-9)
	assert.InDelta(t, w.Extract+w.Split, w.CompletedBefore(types.JobPhaseBGMDetect), 1e-9)

	before := w.CompletedBefore(types.JobPhaseAlign)
	assert.InDelta(t, w.Extract+w.Split+w.Separate+w.Transcribe+w.Retry, before, 1e-9)

	// Reaching the end of render leaves exactly the completion share.
	assert.InDelta(t, 100-w.Complete,
		w.CompletedBefore(types.JobPhaseRender)+w.For(types.JobPhaseRender), 1e-9)
}

func TestWeightsRetryCountsTowardTranscribePhase(t *testing.T) {
	w := ComputeWeights(0, 0.5, false)
	assert.InDelta(t, w.Transcribe+w.Retry, w.For(types.JobPhaseTranscribe), 1e-9)
}
