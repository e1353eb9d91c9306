// SPDX-License-Identifier: MIT

// Package bus implements the in-process event fan-out: per-channel
// subscriber delivery with bounded buffers, an initial-state snapshot
// on subscribe, and heartbeat pings on idle channels.
//
// Channels have two scopes: the queue-wide "global" channel and one
// "job:<id>" channel per job. Publishers never block on slow
// subscribers; the bus sheds droppable kinds and disconnects
// subscribers that overflow on non-droppable ones.
package bus

import (
	"fmt"

	"github.com/subwave-io/subwave/internal/types"
)

// ChannelGlobal is the queue-wide channel name.
const ChannelGlobal = "global"

// JobChannel returns the channel name for one job.
func JobChannel(jobID string) string {
	return "job:" + jobID
}

// ChannelScope returns the bounded metrics label for a channel name.
func ChannelScope(channel string) string {
	if channel == ChannelGlobal {
		return "global"
	}
	return "job"
}

// Event is one tagged message on a channel. IDs are monotonically
// increasing per channel for every subscriber.
type Event struct {
	Channel string          `json:"-"`
	Kind    types.EventKind `json:"kind"`
	ID      uint64          `json:"id"`
	Payload any             `json:"payload"`
}

// QueueUpdatePayload carries the scheduler view after a queue mutation.
type QueueUpdatePayload struct {
	Queue  []string `json:"queue"`
	Active string   `json:"active,omitempty"`
	Paused []string `json:"paused"`
}

// JobStatusPayload carries a job status transition.
type JobStatusPayload struct {
	ID      string          `json:"id"`
	Status  types.JobStatus `json:"status"`
	Phase   types.JobPhase  `json:"phase"`
	Message string          `json:"message,omitempty"`
}

// JobProgressPayload carries weighted progress counters. Artifact is
// set when the progress belongs to a media artifact instead of the
// pipeline.
type JobProgressPayload struct {
	ID             string             `json:"id"`
	Phase          types.JobPhase     `json:"phase,omitempty"`
	PhasePercent   float64            `json:"phase_percent"`
	OverallPercent float64            `json:"overall_percent"`
	Processed      int                `json:"processed,omitempty"`
	Total          int                `json:"total,omitempty"`
	Artifact       types.ArtifactKind `json:"artifact,omitempty"`
}

// FragmentPayload carries freshly split sentences for one segment.
type FragmentPayload struct {
	SegmentIndex int              `json:"segment_index"`
	Language     string           `json:"language,omitempty"`
	Sentences    []types.Sentence `json:"sentences"`
	IsFinal      bool             `json:"is_final"`
}

// SignalPayload carries a named one-shot notification with rationale.
type SignalPayload struct {
	Name   types.SignalName  `json:"name"`
	Detail map[string]string `json:"detail,omitempty"`
}

// PingPayload carries the heartbeat timestamp in unix milliseconds.
type PingPayload struct {
	Time int64 `json:"time"`
}

// String renders the event for logs.
func (e Event) String() string {
	return fmt.Sprintf("%s#%d on %s", e.Kind, e.ID, e.Channel)
}
