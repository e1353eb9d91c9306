// SPDX-License-Identifier: MIT

package subtitle

import (
	"fmt"

	"github.com/subwave-io/subwave/internal/types"
)

// toMillis rounds a second offset to subtitle resolution. All
// rendering and parsing goes through milliseconds so that a rendered
// file parses back with bit-identical timings.
func toMillis(seconds float64) int64 {
	if seconds < 0 {
		return 0
	}
	return int64(seconds*1000 + 0.5)
}

func fromMillis(ms int64) float64 {
	return float64(ms) / 1000
}

// formatSRTTime renders HH:MM:SS,mmm.
func formatSRTTime(ms int64) string {
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// formatVTTTime renders HH:MM:SS.mmm.
func formatVTTTime(ms int64) string {
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// parseSRTTime reads HH:MM:SS,mmm into milliseconds.
func parseSRTTime(v string) (int64, error) {
	var h, m, s, ms int64
	if _, err := fmt.Sscanf(v, "%02d:%02d:%02d,%03d", &h, &m, &s, &ms); err != nil {
		return 0, types.Ef(types.KindValidation, "subtitle.parse_time", "bad timestamp %q", v)
	}
	if m > 59 || s > 59 || ms > 999 {
		return 0, types.Ef(types.KindValidation, "subtitle.parse_time", "out-of-range timestamp %q", v)
	}
	return h*3600000 + m*60000 + s*1000 + ms, nil
}
