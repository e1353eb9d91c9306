// SPDX-License-Identifier: MIT

package types

import "testing"

func TestSeparationTier_Next(t *testing.T) {
	tests := []struct {
		name string
		tier SeparationTier
		want SeparationTier
		ok   bool
	}{
		{"none to weak", TierNone, TierWeak, true},
		{"weak to strong", TierWeak, TierStrong, true},
		{"strong to fallback", TierStrong, TierFallback, true},
		{"fallback is top", TierFallback, TierFallback, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.tier.Next()
			if got != tt.want || ok != tt.ok {
				t.Errorf("Next() = (%s, %v), want (%s, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSeparationTier_RankIsMonotonic(t *testing.T) {
	tiers := AllSeparationTiers()
	for i := 1; i < len(tiers); i++ {
		if tiers[i-1].Rank() >= tiers[i].Rank() {
			t.Errorf("rank order broken: %s (%d) >= %s (%d)",
				tiers[i-1], tiers[i-1].Rank(), tiers[i], tiers[i].Rank())
		}
	}
}

func TestSeparationTier_ChainIsNonDecreasing(t *testing.T) {
	// Walking Next() from the bottom must visit every tier exactly once.
	tier := TierNone
	seen := []SeparationTier{tier}
	for {
		next, ok := tier.Next()
		if !ok {
			break
		}
		if next.Rank() <= tier.Rank() {
			t.Fatalf("escalation went backwards: %s → %s", tier, next)
		}
		seen = append(seen, next)
		tier = next
	}
	if len(seen) != len(AllSeparationTiers()) {
		t.Errorf("chain visited %d tiers, want %d", len(seen), len(AllSeparationTiers()))
	}
}

func TestSeparationPolicy_IsValid(t *testing.T) {
	for _, p := range []SeparationPolicy{SeparationOff, SeparationAuto, SeparationAlways} {
		if !p.IsValid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if SeparationPolicy("sometimes").IsValid() {
		t.Error("unknown policy should be invalid")
	}
}

func TestBGMLevel_IsValid(t *testing.T) {
	for _, l := range []BGMLevel{BGMNone, BGMLight, BGMHeavy} {
		if !l.IsValid() {
			t.Errorf("%s should be valid", l)
		}
	}
	if BGMLevel("extreme").IsValid() {
		t.Error("unknown level should be invalid")
	}
}
