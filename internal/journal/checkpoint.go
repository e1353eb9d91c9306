// SPDX-License-Identifier: MIT

// Package journal persists per-job pipeline state as a single durable
// checkpoint file. The checkpoint is rewritten after every transcribed
// segment and at every phase boundary; a present, parseable checkpoint
// always yields a strictly resumable plan.
package journal

import (
	"sort"

	"github.com/subwave-io/subwave/internal/types"
)

// SchemaVersion is bumped whenever the checkpoint layout changes.
const SchemaVersion = 1

// Checkpoint is the durable partial state of a job.
type Checkpoint struct {
	Version          int                  `json:"version"`
	JobID            string               `json:"job_id"`
	Phase            types.JobPhase       `json:"phase"`
	TotalSegments    int                  `json:"total_segments"`
	ProcessedIndices []int                `json:"processed_indices"`
	Segments         []types.Segment      `json:"segments"`
	UnalignedResults []types.Fragment     `json:"unaligned_results"`
	OriginalSettings types.EngineSettings `json:"original_settings"`
}

// New creates an empty checkpoint for a job.
func New(jobID string, settings types.EngineSettings) *Checkpoint {
	return &Checkpoint{
		Version:          SchemaVersion,
		JobID:            jobID,
		Phase:            types.JobPhasePending,
		ProcessedIndices: []int{},
		Segments:         []types.Segment{},
		UnalignedResults: []types.Fragment{},
		OriginalSettings: settings,
	}
}

// IsProcessed reports whether a segment index is already transcribed.
func (c *Checkpoint) IsProcessed(index int) bool {
	i := sort.SearchInts(c.ProcessedIndices, index)
	return i < len(c.ProcessedIndices) && c.ProcessedIndices[i] == index
}

// MarkProcessed records a segment index, keeping the slice sorted and
// free of repeats.
func (c *Checkpoint) MarkProcessed(index int) {
	i := sort.SearchInts(c.ProcessedIndices, index)
	if i < len(c.ProcessedIndices) && c.ProcessedIndices[i] == index {
		return
	}
	c.ProcessedIndices = append(c.ProcessedIndices, 0)
	copy(c.ProcessedIndices[i+1:], c.ProcessedIndices[i:])
	c.ProcessedIndices[i] = index
}

// NextUnprocessed returns the first segment index not yet transcribed,
// or total when every segment is done.
func (c *Checkpoint) NextUnprocessed() int {
	for i := 0; i < c.TotalSegments; i++ {
		if !c.IsProcessed(i) {
			return i
		}
	}
	return c.TotalSegments
}

// CompatibleWith reports whether a restart with the given settings may
// reuse this checkpoint. Model-identity changes require a fresh run.
func (c *Checkpoint) CompatibleWith(settings types.EngineSettings) bool {
	return c.OriginalSettings.SameModelIdentity(settings)
}

// Validate checks the structural invariants of the checkpoint.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return types.Ef(types.KindValidation, "journal.validate", "missing job id")
	}
	if c.Version != SchemaVersion {
		return types.Ef(types.KindValidation, "journal.validate", "unsupported schema version %d", c.Version)
	}
	if !c.Phase.IsValid() {
		return types.Ef(types.KindValidation, "journal.validate", "invalid phase %q", c.Phase)
	}
	if c.TotalSegments < 0 {
		return types.Ef(types.KindValidation, "journal.validate", "negative total_segments")
	}

	prev := -1
	for _, idx := range c.ProcessedIndices {
		if idx < 0 || idx >= c.TotalSegments {
			return types.Ef(types.KindValidation, "journal.validate",
				"processed index %d outside [0, %d)", idx, c.TotalSegments)
		}
		if idx <= prev {
			return types.Ef(types.KindValidation, "journal.validate",
				"processed indices not strictly increasing at %d", idx)
		}
		prev = idx
	}

	var lastEnd int64 = -1
	for i, seg := range c.Segments {
		if seg.Index != i {
			return types.Ef(types.KindValidation, "journal.validate",
				"segment %d carries index %d", i, seg.Index)
		}
		if seg.StartMS < lastEnd {
			return types.Ef(types.KindValidation, "journal.validate",
				"segment %d overlaps its predecessor", i)
		}
		if seg.DurationMS <= 0 {
			return types.Ef(types.KindValidation, "journal.validate",
				"segment %d has non-positive duration", i)
		}
		lastEnd = seg.EndMS()
	}

	if len(c.Segments) > 0 && len(c.Segments) != c.TotalSegments {
		return types.Ef(types.KindValidation, "journal.validate",
			"segment count %d disagrees with total_segments %d", len(c.Segments), c.TotalSegments)
	}
	return nil
}
