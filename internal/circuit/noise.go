// SPDX-License-Identifier: MIT

package circuit

import (
	"strings"

	"github.com/subwave-io/subwave/internal/types"
)

// noiseMarkers are the transcript tokens recognizers emit when a
// segment is dominated by non-speech audio. Matching is done on the
// lower-cased utterance text.
var noiseMarkers = []string{
	"[music]",
	"[音楽]",
	"(music)",
	"[applause]",
	"[拍手]",
	"[noise]",
	"[inaudible]",
	"♪",
}

// HasNoiseTag reports whether any utterance of the fragment carries a
// known noise event marker.
func HasNoiseTag(frag types.Fragment) bool {
	for _, u := range frag.Segments {
		text := strings.ToLower(u.Text)
		for _, m := range noiseMarkers {
			if strings.Contains(text, m) {
				return true
			}
		}
	}
	return false
}
