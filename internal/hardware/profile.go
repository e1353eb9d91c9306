// SPDX-License-Identifier: MIT

// Package hardware classifies the host for model-residency and
// separation-tier decisions.
//
// The probe runs nvidia-smi once and caches the result. Classification
// is deliberately coarse: {none, small, large} is everything the model
// supervisor and the circuit engine consume.
package hardware

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// largeVRAMMiB is the boundary between the small and large GPU tiers.
const largeVRAMMiB = 6 * 1024

// Profile is the cached hardware classification.
type Profile struct {
	Tier     types.HardwareTier `json:"tier"`
	GPUName  string             `json:"gpu_name,omitempty"`
	VRAMMiB  int                `json:"vram_mib,omitempty"`
	ProbedAt time.Time          `json:"probed_at"`
}

// HasGPU reports whether a usable GPU was found.
func (p Profile) HasGPU() bool {
	return p.Tier != types.HardwareTierNone
}

// Prober runs the hardware probe.
type Prober struct {
	// Bin is the probe binary, normally nvidia-smi.
	Bin string

	// run is the command executor, injectable for tests.
	run func(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// NewProber creates a Prober for the given binary.
func NewProber(bin string) *Prober {
	return &Prober{
		Bin: bin,
		run: func(ctx context.Context, bin string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, bin, args...).Output()
		},
	}
}

// Probe queries the GPU inventory. A missing or failing probe binary
// is not an error: the host is classified as tier none and the
// pipeline runs on CPU.
func (p *Prober) Probe(ctx context.Context) Profile {
	logger := log.WithComponent("hardware")

	profile := Profile{Tier: types.HardwareTierNone, ProbedAt: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := p.run(ctx, p.Bin, "--query-gpu=name,memory.total", "--format=csv,noheader,nounits")
	if err != nil {
		logger.Info().Err(err).Str("bin", p.Bin).Msg("no GPU detected, running on CPU")
		return profile
	}

	name, vram, ok := parseQueryOutput(out)
	if !ok {
		logger.Warn().Str("bin", p.Bin).Msg("unparseable GPU probe output, assuming no GPU")
		return profile
	}

	profile.GPUName = name
	profile.VRAMMiB = vram
	if vram >= largeVRAMMiB {
		profile.Tier = types.HardwareTierLarge
	} else {
		profile.Tier = types.HardwareTierSmall
	}

	logger.Info().
		Str("gpu", name).
		Int("vram_mib", vram).
		Str("tier", profile.Tier.String()).
		Msg("GPU detected")
	return profile
}

// parseQueryOutput reads the first line of nvidia-smi CSV output,
// e.g. "NVIDIA GeForce RTX 3060, 12288".
func parseQueryOutput(out []byte) (name string, vramMiB int, ok bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ",")
		if idx < 0 {
			return "", 0, false
		}
		name = strings.TrimSpace(line[:idx])
		vram, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if err != nil || name == "" {
			return "", 0, false
		}
		return name, vram, true
	}
	return "", 0, false
}
