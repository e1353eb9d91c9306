// SPDX-License-Identifier: MIT

// Package circuit decides, per segment, whether to separate vocals,
// with which model tier, and when to stop retrying. It is pure
// decision logic; the pipeline runner executes the decisions.
package circuit

import (
	"fmt"

	"github.com/subwave-io/subwave/internal/audio"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/types"
)

// Judgment is the spectral pre-judgment over one raw segment chunk.
type Judgment struct {
	Score          float64        `json:"score"`
	Level          types.BGMLevel `json:"level"`
	ShouldSeparate bool           `json:"should_separate"`
}

// Judge classifies the musicality of analyzed audio features into a
// BGM level. Runs on CPU before any model is touched.
func Judge(f audio.Features, cfg config.MusicalityConfig) Judgment {
	score := f.MusicalityScore()
	j := Judgment{Score: score, Level: types.BGMNone}
	switch {
	case score >= cfg.HeavyThreshold:
		j.Level = types.BGMHeavy
	case score >= cfg.LightThreshold:
		j.Level = types.BGMLight
	}
	j.ShouldSeparate = j.Level != types.BGMNone
	return j
}

// InitialTier resolves the starting separation tier from user policy,
// detected BGM level and hardware capability.
//
// Policy off always wins. Without a GPU, separation is skipped unless
// the user insists with policy always.
func InitialTier(policy types.SeparationPolicy, level types.BGMLevel, hw types.HardwareTier) types.SeparationTier {
	if policy == types.SeparationOff {
		return types.TierNone
	}
	if hw == types.HardwareTierNone && policy != types.SeparationAlways {
		return types.TierNone
	}

	switch policy {
	case types.SeparationAlways:
		if level == types.BGMHeavy {
			return types.TierStrong
		}
		return types.TierWeak
	case types.SeparationAuto:
		switch level {
		case types.BGMHeavy:
			return types.TierStrong
		case types.BGMLight:
			return types.TierWeak
		default:
			return types.TierNone
		}
	default:
		return types.TierNone
	}
}

// TierRationale renders the human-readable reason attached to the
// separation_strategy signal.
func TierRationale(policy types.SeparationPolicy, level types.BGMLevel, hw types.HardwareTier, tier types.SeparationTier) string {
	if policy == types.SeparationOff {
		return "separation disabled by policy"
	}
	if hw == types.HardwareTierNone && policy != types.SeparationAlways {
		return "no GPU available, separation skipped"
	}
	return fmt.Sprintf("policy=%s bgm=%s -> tier=%s", policy, level, tier)
}
