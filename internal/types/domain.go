// SPDX-License-Identifier: MIT

package types

import "time"

// EngineSettings is the per-job snapshot of recognition parameters.
// A checkpoint freezes these; restarts with different model-identity
// settings are rejected and require an explicit fresh run.
type EngineSettings struct {
	// Engine names the recognizer that produced or will produce results.
	Engine string `json:"engine"`

	// Model is the recognizer model identifier, e.g. "large-v3".
	Model string `json:"model"`

	// ComputeType is the numeric precision, e.g. "float16" or "int8".
	ComputeType string `json:"compute_type"`

	// Device is the execution device, e.g. "cuda" or "cpu".
	Device string `json:"device"`

	// BatchSize is the recognizer batch size; 0 lets the engine decide.
	BatchSize int `json:"batch_size,omitempty"`

	// WordTimestamps requests native word-level timestamps from the recognizer.
	WordTimestamps bool `json:"word_timestamps"`

	// Language is the expected language code; empty means auto-detect.
	Language string `json:"language,omitempty"`

	// Separation is the vocal-separation policy for this job.
	Separation SeparationPolicy `json:"separation"`

	// OnBreak selects the reaction to a circuit break.
	OnBreak OnBreakAction `json:"on_break"`
}

// SameModelIdentity reports whether two settings describe the same
// recognizer identity. Restart-from-checkpoint requires identity to match.
func (s EngineSettings) SameModelIdentity(other EngineSettings) bool {
	return s.Engine == other.Engine &&
		s.Model == other.Model &&
		s.ComputeType == other.ComputeType &&
		s.Device == other.Device
}

// Segment is one VAD-produced chunk of source audio.
//
// Segments are non-overlapping, sorted by start, and capped at 30s.
type Segment struct {
	Index      int    `json:"index"`
	File       string `json:"file"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`

	// Separated marks that a separator produced the chunk in File.
	Separated bool `json:"separated,omitempty"`

	// Tier is the separation tier currently applied to this segment.
	Tier SeparationTier `json:"tier,omitempty"`
}

// EndMS returns the segment end in milliseconds relative to source audio.
func (s Segment) EndMS() int64 {
	return s.StartMS + s.DurationMS
}

// Word is one recognized word with global timestamps in seconds.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Utterance is one timed text line inside a fragment or aligned result.
type Utterance struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`

	Words      []Word  `json:"words,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Fragment is one recognizer's structured output for one segment.
// Timestamps inside are global (relative to the source audio).
type Fragment struct {
	SegmentIndex int         `json:"segment_index"`
	Language     string      `json:"language,omitempty"`
	Segments     []Utterance `json:"segments"`
}

// Confidence aggregates the utterance confidences of the fragment.
// Fragments without any confidence report 1.0 (nothing to doubt).
func (f Fragment) Confidence() float64 {
	if len(f.Segments) == 0 {
		return 0
	}
	sum := 0.0
	n := 0
	for _, u := range f.Segments {
		if u.Confidence > 0 {
			sum += u.Confidence
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// Sentence is one user-facing subtitle unit produced by the splitter.
type Sentence struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

// JobTimes groups the lifecycle timestamps of a job.
type JobTimes struct {
	Created   time.Time  `json:"created"`
	Started   *time.Time `json:"started,omitempty"`
	Paused    *time.Time `json:"paused,omitempty"`
	Failed    *time.Time `json:"failed,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
}

// Job is the unit of work. The queue owns all mutation; everyone else
// works on copies taken under the queue lock.
type Job struct {
	ID         string         `json:"id"`
	InputPath  string         `json:"input_path"`
	OutputPath string         `json:"output_path,omitempty"`
	Filename   string         `json:"filename"`
	Settings   EngineSettings `json:"settings"`

	Status JobStatus `json:"status"`
	Phase  JobPhase  `json:"phase"`

	// Progress is the overall percentage, one decimal, monotonically
	// non-decreasing within one run.
	Progress float64 `json:"progress"`

	// PhaseProgress is the inner percentage of the current phase.
	PhaseProgress float64 `json:"phase_progress"`

	Message  string `json:"message,omitempty"`
	Language string `json:"language,omitempty"`

	ProcessedSegments int `json:"processed_segments"`
	TotalSegments     int `json:"total_segments"`

	Times     JobTimes `json:"times"`
	LastError string   `json:"last_error,omitempty"`

	// InterruptedBy holds the id of the job that force-preempted this
	// one; cleared when this job is auto-resumed.
	InterruptedBy string `json:"interrupted_by,omitempty"`
}

// Clone returns a deep enough copy for handing out past the queue lock.
func (j *Job) Clone() *Job {
	cp := *j
	return &cp
}
