// SPDX-License-Identifier: MIT

// Package pipeline drives the per-job stage machine: extract, split,
// bgm_detect, separate, transcribe, align, render. It implements the
// queue.Runner contract and owns checkpointing, progress weighting and
// the circuit/escalation loop during transcription.
package pipeline

import (
	"github.com/subwave-io/subwave/internal/types"
)

// Weights distributes the overall progress bar across stages. Fixed
// stages keep constant shares; separation, retry and alignment scale
// with how much of that work the job actually needs, and transcription
// absorbs the remainder. Retry has no phase of its own: its share is
// folded into the transcribe phase, where retries actually happen.
type Weights struct {
	Extract    float64
	Split      float64
	BGMDetect  float64
	Separate   float64
	Transcribe float64
	Retry      float64
	Align      float64
	Render     float64
	Complete   float64
}

const (
	weightExtract  = 5
	weightSplit    = 5
	weightRender   = 10
	weightComplete = 5

	weightSeparateMax   = 15
	weightRetryMax      = 20
	weightAlign         = 10
	transcribeWeightMin = 40
)

// ComputeWeights derives the stage weight vector for one job.
//
// separationFrac is the fraction of segments that get a separation
// pass, retryFrac the expected fraction of segments needing a
// fallback-recognizer retry (zero when no fallback is configured).
// alignNeeded is false when the recognizer emits word timestamps
// natively. The result always sums to 100 and keeps the transcribe
// share at or above its floor by scaling the variable shares down
// proportionally when they would crowd it out.
func ComputeWeights(separationFrac, retryFrac float64, alignNeeded bool) Weights {
	w := Weights{
		Extract:  weightExtract,
		Split:    weightSplit,
		Render:   weightRender,
		Complete: weightComplete,
	}
	fixed := w.Extract + w.Split + w.Render + w.Complete

	w.Separate = weightSeparateMax * clamp01(separationFrac)
	w.Retry = weightRetryMax * clamp01(retryFrac)
	if alignNeeded {
		w.Align = weightAlign
	}

	variable := w.Separate + w.Retry + w.Align
	w.Transcribe = 100 - fixed - variable
	if w.Transcribe < transcribeWeightMin && variable > 0 {
		scale := (100 - fixed - transcribeWeightMin) / variable
		w.Separate *= scale
		w.Retry *= scale
		w.Align *= scale
		w.Transcribe = transcribeWeightMin
	}
	return w
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// For returns the progress weight attributed to one phase. The retry
// share counts toward the transcribe phase.
func (w Weights) For(phase types.JobPhase) float64 {
	switch phase {
	case types.JobPhaseExtract:
		return w.Extract
	case types.JobPhaseSplit:
		return w.Split
	case types.JobPhaseBGMDetect:
		return w.BGMDetect
	case types.JobPhaseSeparate:
		return w.Separate
	case types.JobPhaseTranscribe:
		return w.Transcribe + w.Retry
	case types.JobPhaseAlign:
		return w.Align
	case types.JobPhaseRender:
		return w.Render
	case types.JobPhaseComplete:
		return w.Complete
	default:
		return 0
	}
}

// CompletedBefore sums the weights of all phases that precede the
// given phase in the pipeline order.
func (w Weights) CompletedBefore(phase types.JobPhase) float64 {
	sum := 0.0
	for _, p := range pipelinePhases {
		if p.Order() >= phase.Order() {
			break
		}
		sum += w.For(p)
	}
	return sum
}

var pipelinePhases = []types.JobPhase{
	types.JobPhaseExtract,
	types.JobPhaseSplit,
	types.JobPhaseBGMDetect,
	types.JobPhaseSeparate,
	types.JobPhaseTranscribe,
	types.JobPhaseAlign,
	types.JobPhaseRender,
	types.JobPhaseComplete,
}
