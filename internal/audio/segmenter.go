// SPDX-License-Identifier: MIT

package audio

import (
	"math"

	"github.com/subwave-io/subwave/internal/types"
)

// Interval is one time range in seconds.
type Interval struct {
	Start float64
	End   float64
}

// SegmentPlanConfig controls the split planner.
type SegmentPlanConfig struct {
	// MaxSec is the hard cap on segment duration.
	MaxSec float64

	// TargetSec is the preferred segment duration.
	TargetSec float64

	// PadMS pads each speech region on both sides.
	PadMS int64

	// MinRegionSec drops speech regions shorter than this.
	MinRegionSec float64
}

// DefaultSegmentPlanConfig mirrors the config package defaults.
func DefaultSegmentPlanConfig() SegmentPlanConfig {
	return SegmentPlanConfig{MaxSec: 30, TargetSec: 15, PadMS: 150, MinRegionSec: 0.2}
}

// PlanSegments turns detected silences into the ordered segment plan.
// Speech regions are the complement of the silences, padded on both
// sides, then chopped so every segment stays at or under the hard cap
// while targeting the preferred duration.
//
// Silences with End < 0 (open intervals) are clamped to the clip end.
// The returned segments are non-overlapping, sorted by start, and
// carry indices 0..n-1; file paths are left empty for the caller.
func PlanSegments(duration float64, silences []Interval, cfg SegmentPlanConfig) []types.Segment {
	if duration <= 0 {
		return nil
	}
	if cfg.MaxSec <= 0 {
		cfg.MaxSec = 30
	}
	if cfg.TargetSec <= 0 || cfg.TargetSec > cfg.MaxSec {
		cfg.TargetSec = cfg.MaxSec / 2
	}

	regions := speechRegions(duration, silences, cfg)

	var out []types.Segment
	for _, reg := range regions {
		for _, piece := range chop(reg, cfg.TargetSec, cfg.MaxSec) {
			startMS := int64(math.Round(piece.Start * 1000))
			endMS := int64(math.Round(piece.End * 1000))
			if endMS <= startMS {
				continue
			}
			out = append(out, types.Segment{
				Index:      len(out),
				StartMS:    startMS,
				DurationMS: endMS - startMS,
			})
		}
	}
	return out
}

// speechRegions inverts silences over [0, duration], pads and merges.
func speechRegions(duration float64, silences []Interval, cfg SegmentPlanConfig) []Interval {
	pad := float64(cfg.PadMS) / 1000

	var regions []Interval
	cursor := 0.0
	for _, s := range silences {
		end := s.End
		if end < 0 || end > duration {
			end = duration
		}
		if s.Start > cursor {
			regions = append(regions, Interval{Start: cursor, End: math.Min(s.Start, duration)})
		}
		if end > cursor {
			cursor = end
		}
	}
	if cursor < duration {
		regions = append(regions, Interval{Start: cursor, End: duration})
	}

	// Pad and merge. Padding may close the gap between neighbors;
	// merged regions keep the plan non-overlapping by construction.
	var merged []Interval
	for _, r := range regions {
		if r.End-r.Start < cfg.MinRegionSec {
			continue
		}
		r.Start = math.Max(0, r.Start-pad)
		r.End = math.Min(duration, r.End+pad)

		if n := len(merged); n > 0 && r.Start <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// chop cuts one region into pieces of at most maxSec, aiming for
// near-equal pieces around targetSec.
func chop(reg Interval, targetSec, maxSec float64) []Interval {
	length := reg.End - reg.Start
	if length <= maxSec {
		return []Interval{reg}
	}

	n := int(math.Ceil(length / targetSec))
	if n < 2 {
		n = 2
	}
	piece := length / float64(n)
	// Equal pieces can still exceed the cap when target is close to
	// max; grow n until they fit.
	for piece > maxSec {
		n++
		piece = length / float64(n)
	}

	out := make([]Interval, 0, n)
	for i := 0; i < n; i++ {
		start := reg.Start + float64(i)*piece
		end := reg.Start + float64(i+1)*piece
		if i == n-1 {
			end = reg.End
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}
