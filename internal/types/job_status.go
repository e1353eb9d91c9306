// SPDX-License-Identifier: MIT

// Package types provides type-safe enumerations and constants for subwave.
//
// This package centralizes all typed constants, enums, and state types
// to prevent string-based bugs and improve code maintainability.
package types

import (
	"encoding/json"
	"fmt"
)

// JobStatus represents the current state of a transcription job.
//
// JobStatus provides type safety for job state management, preventing
// string-based typos and enabling exhaustive switch statements.
type JobStatus string

// Job status constants define all possible states of a transcription job.
const (
	// JobStatusCreated indicates the job record exists but has not been enqueued.
	JobStatusCreated JobStatus = "created"

	// JobStatusQueued indicates the job is waiting in the queue.
	JobStatusQueued JobStatus = "queued"

	// JobStatusProcessing indicates the job is currently being driven by the pipeline.
	JobStatusProcessing JobStatus = "processing"

	// JobStatusPaused indicates the job was paused with a checkpoint and can be resumed.
	JobStatusPaused JobStatus = "paused"

	// JobStatusFinished indicates the job completed successfully.
	JobStatusFinished JobStatus = "finished"

	// JobStatusFailed indicates the job encountered an unrecoverable error.
	JobStatusFailed JobStatus = "failed"

	// JobStatusCanceled indicates the job was canceled by the user.
	JobStatusCanceled JobStatus = "canceled"
)

// String returns the string representation of the job status.
// Implements the fmt.Stringer interface for better logging and debugging.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid checks whether the job status is one of the defined constants.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusCreated, JobStatusQueued, JobStatusProcessing,
		JobStatusPaused, JobStatusFinished, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal checks whether the job status represents a final state for the run.
//
// Terminal states include: Finished, Failed, Canceled.
// The job row itself is retained until explicitly deleted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusFinished, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// IsIncomplete reports whether the job still has work pending or suspended.
//
// Incomplete states are the ones the resume scan on startup cares about:
// Queued, Processing and Paused.
func (s JobStatus) IsIncomplete() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusPaused:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether this status can transition to the target status.
//
// Valid transitions:
//   - Created → Queued, Canceled
//   - Queued → Processing, Paused, Canceled
//   - Processing → Finished, Failed, Canceled, Paused
//   - Paused → Queued, Canceled
//   - Terminal states cannot transition
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	// Terminal states cannot transition
	if s.IsTerminal() {
		return false
	}

	switch s {
	case JobStatusCreated:
		return target == JobStatusQueued || target == JobStatusCanceled
	case JobStatusQueued:
		return target == JobStatusProcessing || target == JobStatusPaused || target == JobStatusCanceled
	case JobStatusProcessing:
		return target == JobStatusFinished || target == JobStatusFailed ||
			target == JobStatusCanceled || target == JobStatusPaused
	case JobStatusPaused:
		return target == JobStatusQueued || target == JobStatusCanceled
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler for JobStatus.
func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for JobStatus.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := JobStatus(str)
	// Empty means unset; callers apply defaults.
	if status != "" && !status.IsValid() {
		return fmt.Errorf("invalid job status: %q", str)
	}

	*s = status
	return nil
}

// ParseJobStatus parses a string into a JobStatus, returning an error if invalid.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid job status: %q (valid: created, queued, processing, paused, finished, failed, canceled)", s)
	}
	return status, nil
}

// AllJobStatuses returns all defined job statuses.
//
// Useful for validation, documentation, and UI enumeration.
func AllJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusCreated,
		JobStatusQueued,
		JobStatusProcessing,
		JobStatusPaused,
		JobStatusFinished,
		JobStatusFailed,
		JobStatusCanceled,
	}
}
