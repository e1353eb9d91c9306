// SPDX-License-Identifier: MIT

package types

import "time"

// AlignedResult is the durable aligned-timestamps artifact written
// after the align stage. Clients fetch it over HTTP; it is never
// pushed through the event bus.
type AlignedResult struct {
	JobID        string      `json:"job_id"`
	Language     string      `json:"language,omitempty"`
	AlignedAt    time.Time   `json:"aligned_at"`
	Segments     []Utterance `json:"segments"`
	WordSegments []Word      `json:"word_segments,omitempty"`
}
