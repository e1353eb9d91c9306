// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// SeparationTier represents the vocal-separation model tier applied to a segment.
//
// Tiers form an ordered escalation chain; the circuit engine only ever
// walks the chain upwards within one job.
type SeparationTier string

// Separation tier constants, ordered from cheapest to heaviest.
const (
	// TierNone indicates the raw chunk is used without separation.
	TierNone SeparationTier = "none"

	// TierWeak indicates the fast, lower-quality separator model.
	TierWeak SeparationTier = "weak"

	// TierStrong indicates the slower, higher-quality separator model.
	TierStrong SeparationTier = "strong"

	// TierFallback indicates the last-resort separator model.
	TierFallback SeparationTier = "fallback"
)

// tierRank orders the escalation chain none < weak < strong < fallback.
var tierRank = map[SeparationTier]int{
	TierNone:     0,
	TierWeak:     1,
	TierStrong:   2,
	TierFallback: 3,
}

// String implements fmt.Stringer.
func (t SeparationTier) String() string {
	return string(t)
}

// IsValid checks whether the tier is one of the defined constants.
func (t SeparationTier) IsValid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the tier's position in the escalation chain.
func (t SeparationTier) Rank() int {
	if n, ok := tierRank[t]; ok {
		return n
	}
	return -1
}

// Next returns the next heavier tier, or false when t is already the top.
func (t SeparationTier) Next() (SeparationTier, bool) {
	switch t {
	case TierNone:
		return TierWeak, true
	case TierWeak:
		return TierStrong, true
	case TierStrong:
		return TierFallback, true
	default:
		return t, false
	}
}

// AtTop reports whether no heavier tier remains.
func (t SeparationTier) AtTop() bool {
	return t == TierFallback
}

// MarshalJSON implements json.Marshaler for SeparationTier.
func (t SeparationTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

// UnmarshalJSON implements json.Unmarshaler for SeparationTier.
func (t *SeparationTier) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	tier := SeparationTier(str)
	// Empty means unset; callers apply defaults.
	if tier != "" && !tier.IsValid() {
		return fmt.Errorf("invalid separation tier: %q", str)
	}

	*t = tier
	return nil
}

// AllSeparationTiers returns all tiers in escalation order.
func AllSeparationTiers() []SeparationTier {
	return []SeparationTier{TierNone, TierWeak, TierStrong, TierFallback}
}

// SeparationPolicy is the user-facing vocal-separation preference.
type SeparationPolicy string

// Separation policy constants.
const (
	// SeparationOff disables separation for the whole job.
	SeparationOff SeparationPolicy = "off"

	// SeparationAuto lets spectral pre-judgment decide per segment.
	SeparationAuto SeparationPolicy = "auto"

	// SeparationAlways separates every segment regardless of analysis.
	SeparationAlways SeparationPolicy = "always"
)

// String implements fmt.Stringer.
func (p SeparationPolicy) String() string {
	return string(p)
}

// IsValid checks whether the policy is one of the defined constants.
func (p SeparationPolicy) IsValid() bool {
	switch p {
	case SeparationOff, SeparationAuto, SeparationAlways:
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler for SeparationPolicy.
func (p *SeparationPolicy) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	pol := SeparationPolicy(str)
	// Empty means unset; callers apply defaults.
	if pol != "" && !pol.IsValid() {
		return fmt.Errorf("invalid separation policy: %q", str)
	}
	*p = pol
	return nil
}

// MarshalJSON implements json.Marshaler for SeparationPolicy.
func (p SeparationPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// BGMLevel is the output of the spectral pre-judgment over one segment.
type BGMLevel string

// BGM level constants.
const (
	// BGMNone indicates no meaningful tonal background was detected.
	BGMNone BGMLevel = "none"

	// BGMLight indicates light background music or noise.
	BGMLight BGMLevel = "light"

	// BGMHeavy indicates heavy, continuous background music.
	BGMHeavy BGMLevel = "heavy"
)

// String implements fmt.Stringer.
func (l BGMLevel) String() string {
	return string(l)
}

// IsValid checks whether the level is one of the defined constants.
func (l BGMLevel) IsValid() bool {
	switch l {
	case BGMNone, BGMLight, BGMHeavy:
		return true
	default:
		return false
	}
}
