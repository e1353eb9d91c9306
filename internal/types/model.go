// SPDX-License-Identifier: MIT

package types

import "fmt"

// ModelKind identifies a heavy model family managed by the supervisor.
type ModelKind string

// Model kind constants.
const (
	// ModelRecognizerPrimary is the fast primary speech recognizer.
	ModelRecognizerPrimary ModelKind = "recognizer_primary"

	// ModelRecognizerFallback is the heavier fallback recognizer.
	ModelRecognizerFallback ModelKind = "recognizer_fallback"

	// ModelAligner is the forced-alignment model.
	ModelAligner ModelKind = "aligner"

	// ModelSeparator is the vocal-separation model family (tiered variants).
	ModelSeparator ModelKind = "separator"
)

// String implements fmt.Stringer.
func (k ModelKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is one of the defined constants.
func (k ModelKind) IsValid() bool {
	switch k {
	case ModelRecognizerPrimary, ModelRecognizerFallback, ModelAligner, ModelSeparator:
		return true
	default:
		return false
	}
}

// IsHeavy reports whether loading this kind consumes a heavy resource slot.
// The aligner is treated as a light auxiliary.
func (k ModelKind) IsHeavy() bool {
	switch k {
	case ModelRecognizerPrimary, ModelRecognizerFallback, ModelSeparator:
		return true
	default:
		return false
	}
}

// ParseModelKind parses a string into a ModelKind, returning an error if invalid.
func ParseModelKind(s string) (ModelKind, error) {
	kind := ModelKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid model kind: %q", s)
	}
	return kind, nil
}

// HardwareTier classifies the host for model-residency decisions.
type HardwareTier string

// Hardware tier constants.
const (
	// HardwareTierNone indicates no usable GPU; one resident model at most.
	HardwareTierNone HardwareTier = "none"

	// HardwareTierSmall indicates a small GPU; one heavy model plus light auxiliaries.
	HardwareTierSmall HardwareTier = "small"

	// HardwareTierLarge indicates a large GPU; two or more resident heavy models.
	HardwareTierLarge HardwareTier = "large"
)

// String implements fmt.Stringer.
func (t HardwareTier) String() string {
	return string(t)
}

// IsValid checks whether the tier is one of the defined constants.
func (t HardwareTier) IsValid() bool {
	switch t {
	case HardwareTierNone, HardwareTierSmall, HardwareTierLarge:
		return true
	default:
		return false
	}
}

// MaxResidentHeavy returns how many heavy models may stay loaded at once.
func (t HardwareTier) MaxResidentHeavy() int {
	switch t {
	case HardwareTierLarge:
		return 2
	default:
		return 1
	}
}
