// SPDX-License-Identifier: MIT

package types

// EventKind tags one bus event with its payload shape. The set is
// closed; subscribers dispatch on the tag.
type EventKind string

// Event kind constants.
const (
	// EventInitialState carries the full current snapshot for a channel.
	// It is always the first event a subscriber receives.
	EventInitialState EventKind = "initial_state"

	// EventQueueUpdate carries the ordered queue ids, active id and paused ids.
	EventQueueUpdate EventKind = "queue_update"

	// EventJobStatus carries a job's id, status, message and phase.
	EventJobStatus EventKind = "job_status"

	// EventJobProgress carries phase percent, overall percent and counters.
	EventJobProgress EventKind = "job_progress"

	// EventFragment carries freshly transcribed sentences for one segment.
	EventFragment EventKind = "fragment"

	// EventSignal carries a named one-shot notification.
	EventSignal EventKind = "signal"

	// EventPing is the heartbeat emitted when nothing else flowed.
	EventPing EventKind = "ping"
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is one of the defined constants.
func (k EventKind) IsValid() bool {
	switch k {
	case EventInitialState, EventQueueUpdate, EventJobStatus,
		EventJobProgress, EventFragment, EventSignal, EventPing:
		return true
	default:
		return false
	}
}

// Droppable reports whether the bus may shed this kind for a slow
// subscriber. Signals and status transitions must never be dropped.
func (k EventKind) Droppable() bool {
	switch k {
	case EventJobProgress, EventPing:
		return true
	default:
		return false
	}
}

// SignalName identifies one-shot notifications delivered as signal events.
type SignalName string

// Signal name constants.
const (
	SignalJobPaused          SignalName = "job_paused"
	SignalJobResumed         SignalName = "job_resumed"
	SignalJobCanceled        SignalName = "job_canceled"
	SignalJobComplete        SignalName = "job_complete"
	SignalJobFailed          SignalName = "job_failed"
	SignalAlignmentReady     SignalName = "alignment_ready"
	SignalProxy720pComplete  SignalName = "proxy_720p_complete"
	SignalPreview360Complete SignalName = "preview_360p_complete"
	SignalModelEscalated     SignalName = "model_escalated"
	SignalCircuitBreak       SignalName = "circuit_break"
	SignalBGMDetected        SignalName = "bgm_detected"
	SignalSeparationStrategy SignalName = "separation_strategy"
)

// String implements fmt.Stringer.
func (n SignalName) String() string {
	return string(n)
}

// IsValid checks whether the signal name is one of the defined constants.
func (n SignalName) IsValid() bool {
	switch n {
	case SignalJobPaused, SignalJobResumed, SignalJobCanceled, SignalJobComplete,
		SignalJobFailed, SignalAlignmentReady, SignalProxy720pComplete,
		SignalPreview360Complete, SignalModelEscalated, SignalCircuitBreak,
		SignalBGMDetected, SignalSeparationStrategy:
		return true
	default:
		return false
	}
}
