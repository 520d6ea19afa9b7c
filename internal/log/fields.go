// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID   = "request_id"
	FieldRecordingID = "recording_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStep      = "step"

	// Media fields
	FieldFrame     = "frame"
	FieldFrameRate = "frame_rate"
	FieldScale     = "scale"
	FieldEncoder   = "encoder"
	FieldSnapshots = "snapshots"

	// Path fields
	FieldPath      = "path"
	FieldOutputDir = "output_dir"
)
