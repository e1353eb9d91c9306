// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// JobPhase represents the pipeline stage a job is currently in.
//
// Phases advance in a fixed order; the pipeline runner never moves a
// job backwards except on an explicit restart from checkpoint.
type JobPhase string

// Job phase constants in pipeline execution order.
const (
	// JobPhasePending indicates the pipeline has not started yet.
	JobPhasePending JobPhase = "pending"

	// JobPhaseExtract indicates audio is being extracted from the source.
	JobPhaseExtract JobPhase = "extract"

	// JobPhaseSplit indicates voice-activity segmentation is running.
	JobPhaseSplit JobPhase = "split"

	// JobPhaseBGMDetect indicates spectral background-music analysis is running.
	JobPhaseBGMDetect JobPhase = "bgm_detect"

	// JobPhaseSeparate indicates vocal separation is running for flagged segments.
	JobPhaseSeparate JobPhase = "separate"

	// JobPhaseTranscribe indicates segment-by-segment recognition is running.
	JobPhaseTranscribe JobPhase = "transcribe"

	// JobPhaseAlign indicates forced alignment is running.
	JobPhaseAlign JobPhase = "align"

	// JobPhaseRender indicates subtitle rendering is running.
	JobPhaseRender JobPhase = "render"

	// JobPhaseComplete indicates the pipeline finished all stages.
	JobPhaseComplete JobPhase = "complete"
)

// phaseOrder maps each phase to its position in the pipeline.
var phaseOrder = map[JobPhase]int{
	JobPhasePending:    0,
	JobPhaseExtract:    1,
	JobPhaseSplit:      2,
	JobPhaseBGMDetect:  3,
	JobPhaseSeparate:   4,
	JobPhaseTranscribe: 5,
	JobPhaseAlign:      6,
	JobPhaseRender:     7,
	JobPhaseComplete:   8,
}

// String implements fmt.Stringer.
func (p JobPhase) String() string {
	return string(p)
}

// IsValid checks whether the phase is one of the defined constants.
func (p JobPhase) IsValid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Order returns the position of the phase in the pipeline sequence.
// Invalid phases sort before pending.
func (p JobPhase) Order() int {
	if n, ok := phaseOrder[p]; ok {
		return n
	}
	return -1
}

// Before reports whether p comes strictly before other in pipeline order.
func (p JobPhase) Before(other JobPhase) bool {
	return p.Order() < other.Order()
}

// MarshalJSON implements json.Marshaler for JobPhase.
func (p JobPhase) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// UnmarshalJSON implements json.Unmarshaler for JobPhase.
func (p *JobPhase) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	phase := JobPhase(str)
	// Empty means unset; callers apply defaults.
	if phase != "" && !phase.IsValid() {
		return fmt.Errorf("invalid job phase: %q", str)
	}

	*p = phase
	return nil
}

// ParseJobPhase parses a string into a JobPhase, returning an error if invalid.
func ParseJobPhase(s string) (JobPhase, error) {
	phase := JobPhase(s)
	if !phase.IsValid() {
		return "", fmt.Errorf("invalid job phase: %q", s)
	}
	return phase, nil
}

// AllJobPhases returns all phases in pipeline order.
func AllJobPhases() []JobPhase {
	return []JobPhase{
		JobPhasePending,
		JobPhaseExtract,
		JobPhaseSplit,
		JobPhaseBGMDetect,
		JobPhaseSeparate,
		JobPhaseTranscribe,
		JobPhaseAlign,
		JobPhaseRender,
		JobPhaseComplete,
	}
}
