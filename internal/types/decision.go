// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// FuseOutcome is the verdict of the confidence gate for one segment attempt.
type FuseOutcome string

// Fuse outcome constants.
const (
	// FuseAccept accepts the transcription result as-is.
	FuseAccept FuseOutcome = "accept"

	// FuseUpgradeSeparation re-runs the segment with the next separator tier.
	FuseUpgradeSeparation FuseOutcome = "upgrade_separation"

	// FuseRecognizerRetry re-runs the segment through the fallback recognizer.
	FuseRecognizerRetry FuseOutcome = "recognizer_retry"
)

// String implements fmt.Stringer.
func (o FuseOutcome) String() string {
	return string(o)
}

// IsValid checks whether the outcome is one of the defined constants.
func (o FuseOutcome) IsValid() bool {
	switch o {
	case FuseAccept, FuseUpgradeSeparation, FuseRecognizerRetry:
		return true
	default:
		return false
	}
}

// OnBreakAction is the user-configured reaction to a circuit break.
type OnBreakAction string

// On-break action constants.
const (
	// BreakContinue accepts current results and marks offending segments.
	BreakContinue OnBreakAction = "continue"

	// BreakFallbackOriginal discards separation and re-runs remaining segments on raw audio.
	BreakFallbackOriginal OnBreakAction = "fallback_original"

	// BreakFail terminates the job with a failure.
	BreakFail OnBreakAction = "fail"

	// BreakPause saves a checkpoint and awaits user input.
	BreakPause OnBreakAction = "pause"
)

// String implements fmt.Stringer.
func (a OnBreakAction) String() string {
	return string(a)
}

// IsValid checks whether the action is one of the defined constants.
func (a OnBreakAction) IsValid() bool {
	switch a {
	case BreakContinue, BreakFallbackOriginal, BreakFail, BreakPause:
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler for OnBreakAction.
func (a *OnBreakAction) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	action := OnBreakAction(str)
	// Empty means unset; callers apply defaults.
	if action != "" && !action.IsValid() {
		return fmt.Errorf("invalid on-break action: %q", str)
	}
	*a = action
	return nil
}

// MarshalJSON implements json.Marshaler for OnBreakAction.
func (a OnBreakAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// PriorityMode selects how a job is moved to the front of the queue.
type PriorityMode string

// Priority mode constants.
const (
	// PriorityGentle moves the job to the queue head; the running job finishes naturally.
	PriorityGentle PriorityMode = "gentle"

	// PriorityForce moves the job to the head and preempts the running job,
	// which is paused with a checkpoint and auto-resumed afterwards.
	PriorityForce PriorityMode = "force"
)

// String implements fmt.Stringer.
func (m PriorityMode) String() string {
	return string(m)
}

// IsValid checks whether the mode is one of the defined constants.
func (m PriorityMode) IsValid() bool {
	switch m {
	case PriorityGentle, PriorityForce:
		return true
	default:
		return false
	}
}

// ParsePriorityMode parses a string into a PriorityMode, returning an error if invalid.
func ParsePriorityMode(s string) (PriorityMode, error) {
	mode := PriorityMode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid priority mode: %q (valid: gentle, force)", s)
	}
	return mode, nil
}
