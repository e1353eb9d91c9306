// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/subwave-io/subwave/internal/types"
)

// Aligner refines fragment timestamps against the full source audio.
type Aligner interface {
	Align(ctx context.Context, audioPath string, fragments []types.Fragment) (*types.AlignedResult, error)
}

// CLIAligner drives a forced-alignment CLI. The transcript goes in as
// a JSON file, the refined timestamps come back out as one.
type CLIAligner struct {
	bin    string
	device string
	run    runFunc

	// tmpDir receives the transcript handoff files; empty means os.TempDir.
	tmpDir string
}

// NewCLIAligner builds an aligner around the given binary.
func NewCLIAligner(bin, device string) *CLIAligner {
	return &CLIAligner{bin: bin, device: device, run: runTool}
}

// alignerTranscript is the input handoff document.
type alignerTranscript struct {
	Language string            `json:"language,omitempty"`
	Segments []types.Utterance `json:"segments"`
}

// alignerDoc mirrors the tool's JSON output.
type alignerDoc struct {
	Segments     []types.Utterance `json:"segments"`
	WordSegments []types.Word      `json:"word_segments"`
}

// Align implements Aligner. Fragments must already carry global
// timestamps; the tool realigns them against the whole audio track.
func (a *CLIAligner) Align(ctx context.Context, audioPath string, fragments []types.Fragment) (*types.AlignedResult, error) {
	transcript := alignerTranscript{}
	for _, f := range fragments {
		if transcript.Language == "" {
			transcript.Language = f.Language
		}
		transcript.Segments = append(transcript.Segments, f.Segments...)
	}
	if len(transcript.Segments) == 0 {
		return &types.AlignedResult{AlignedAt: time.Now().UTC()}, nil
	}

	dir := a.tmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	inPath := filepath.Join(dir, "align-in-"+randomSuffix()+".json")
	outPath := filepath.Join(dir, "align-out-"+randomSuffix()+".json")
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	data, err := json.Marshal(transcript)
	if err != nil {
		return nil, types.E(types.KindInternal, "engine.align", err)
	}
	if err := os.WriteFile(inPath, data, 0o644); err != nil {
		return nil, types.E(types.KindIO, "engine.align", err)
	}

	args := []string{
		"--audio", audioPath,
		"--transcript", inPath,
		"--output", outPath,
		"--device", a.device,
	}
	if transcript.Language != "" {
		args = append(args, "--language", transcript.Language)
	}
	if _, err := a.run(ctx, a.bin, args); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return nil, types.Ef(types.KindExternalTool, "engine.align", "tool produced no output: %v", err)
	}
	var doc alignerDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, types.E(types.KindExternalTool, "engine.align", err)
	}

	return &types.AlignedResult{
		Language:     transcript.Language,
		AlignedAt:    time.Now().UTC(),
		Segments:     doc.Segments,
		WordSegments: doc.WordSegments,
	}, nil
}
