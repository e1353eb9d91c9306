// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"os"

	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/types"
)

// Separator extracts the vocal stem from a segment chunk.
type Separator interface {
	// Separate writes the vocal stem of inPath to outPath using the
	// model variant mapped to tier.
	Separate(ctx context.Context, inPath, outPath string, tier types.SeparationTier) error
}

// CLISeparator drives a source-separation CLI. One binary serves all
// tiers; the tier picks the model variant.
type CLISeparator struct {
	bin    string
	device string
	models config.SeparatorConfig
	run    runFunc
}

// NewCLISeparator builds a separator around the given binary.
func NewCLISeparator(bin, device string, models config.SeparatorConfig) *CLISeparator {
	return &CLISeparator{bin: bin, device: device, models: models, run: runTool}
}

// Separate implements Separator.
func (s *CLISeparator) Separate(ctx context.Context, inPath, outPath string, tier types.SeparationTier) error {
	model := s.models.ModelForTier(tier)
	if model == "" {
		return types.Ef(types.KindValidation, "engine.separate", "no separator model for tier %q", tier)
	}

	args := []string{
		inPath,
		"--model", model,
		"--stem", "vocals",
		"--device", s.device,
		"--output", outPath,
	}
	if _, err := s.run(ctx, s.bin, args); err != nil {
		return err
	}

	// Some tools exit zero on silent input without writing a stem;
	// treat that the same as a tool failure so the caller can fall
	// back to the raw chunk.
	if fi, err := os.Stat(outPath); err != nil || fi.Size() == 0 {
		return types.Ef(types.KindExternalTool, "engine.separate",
			"separator produced no output for %s (tier %s)", inPath, tier)
	}
	return nil
}
