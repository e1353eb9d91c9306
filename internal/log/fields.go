// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldHandle    = "handle"

	// Process / pipeline fields
	FieldEvent        = "event"
	FieldComponent    = "component"
	FieldPhase        = "phase"
	FieldSegmentIndex = "segment_index"
	FieldTier         = "tier"
	FieldArtifact     = "artifact"
	FieldEngine       = "engine"
	FieldModel        = "model"
	FieldDevice       = "device"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldStatus   = "status"

	// Path fields
	FieldPath      = "path"
	FieldInputPath = "input_path"
)
