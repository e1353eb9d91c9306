// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// ArtifactKind identifies one derived media artifact of a job.
type ArtifactKind string

// Artifact kind constants in generation priority order.
const (
	// ArtifactAudioWAV is the extracted mono PCM audio (feeds peaks).
	ArtifactAudioWAV ArtifactKind = "audio_wav"

	// ArtifactPeaks is the precomputed waveform peak file for the editor.
	ArtifactPeaks ArtifactKind = "peaks"

	// ArtifactPreview360p is the quickly playable low-resolution proxy.
	ArtifactPreview360p ArtifactKind = "preview_360p"

	// ArtifactThumbnails is the sprite grid plus tile index.
	ArtifactThumbnails ArtifactKind = "thumbnails"

	// ArtifactProxy720p is the quality playback proxy.
	ArtifactProxy720p ArtifactKind = "proxy_720p"
)

// String implements fmt.Stringer.
func (k ArtifactKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is one of the defined constants.
func (k ArtifactKind) IsValid() bool {
	switch k {
	case ArtifactAudioWAV, ArtifactPeaks, ArtifactPreview360p, ArtifactThumbnails, ArtifactProxy720p:
		return true
	default:
		return false
	}
}

// AllArtifactKinds returns all artifact kinds in scheduling priority order.
func AllArtifactKinds() []ArtifactKind {
	return []ArtifactKind{
		ArtifactAudioWAV,
		ArtifactPeaks,
		ArtifactPreview360p,
		ArtifactThumbnails,
		ArtifactProxy720p,
	}
}

// ArtifactState is the tiny per-artifact state machine.
type ArtifactState string

// Artifact state constants.
const (
	// ArtifactAbsent indicates the artifact has not been generated.
	ArtifactAbsent ArtifactState = "absent"

	// ArtifactGenerating indicates a generator worker is producing it.
	ArtifactGenerating ArtifactState = "generating"

	// ArtifactReady indicates the artifact exists and is readable.
	ArtifactReady ArtifactState = "ready"

	// ArtifactFailed indicates the last generation attempt failed.
	ArtifactFailed ArtifactState = "failed"
)

// String implements fmt.Stringer.
func (s ArtifactState) String() string {
	return string(s)
}

// IsValid checks whether the state is one of the defined constants.
func (s ArtifactState) IsValid() bool {
	switch s {
	case ArtifactAbsent, ArtifactGenerating, ArtifactReady, ArtifactFailed:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler for ArtifactState.
func (s ArtifactState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for ArtifactState.
func (s *ArtifactState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state := ArtifactState(str)
	// Empty means unset; callers apply defaults.
	if state != "" && !state.IsValid() {
		return fmt.Errorf("invalid artifact state: %q", str)
	}
	*s = state
	return nil
}
