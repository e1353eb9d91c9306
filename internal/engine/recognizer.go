// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/subwave-io/subwave/internal/types"
)

// TranscribeRequest carries one segment chunk into a recognizer.
type TranscribeRequest struct {
	// AudioPath is the segment WAV (separated or raw).
	AudioPath string

	// SegmentIndex identifies the segment in the job's plan.
	SegmentIndex int

	// OffsetSec shifts chunk-local timestamps to global source time.
	OffsetSec float64

	// Settings is the job's frozen engine configuration.
	Settings types.EngineSettings
}

// Recognizer turns a segment chunk into a timed transcript fragment.
type Recognizer interface {
	// Transcribe blocks until the tool finishes or ctx is cancelled.
	// Returned fragment timestamps are global.
	Transcribe(ctx context.Context, req TranscribeRequest) (types.Fragment, error)

	// Name identifies the recognizer in logs and decisions.
	Name() string
}

// CLIRecognizer invokes a whisper-style transcription CLI that prints
// a JSON document on stdout.
type CLIRecognizer struct {
	bin  string
	name string
	run  runFunc
}

// NewCLIRecognizer builds a recognizer around the given binary.
func NewCLIRecognizer(name, bin string) *CLIRecognizer {
	return &CLIRecognizer{bin: bin, name: name, run: runTool}
}

// Name implements Recognizer.
func (r *CLIRecognizer) Name() string { return r.name }

// Transcribe implements Recognizer.
func (r *CLIRecognizer) Transcribe(ctx context.Context, req TranscribeRequest) (types.Fragment, error) {
	args := []string{
		req.AudioPath,
		"--model", req.Settings.Model,
		"--device", req.Settings.Device,
		"--compute-type", req.Settings.ComputeType,
		"--output-format", "json",
	}
	if req.Settings.BatchSize > 0 {
		args = append(args, "--batch-size", strconv.Itoa(req.Settings.BatchSize))
	}
	if req.Settings.WordTimestamps {
		args = append(args, "--word-timestamps")
	}
	if req.Settings.Language != "" {
		args = append(args, "--language", req.Settings.Language)
	}

	out, err := r.run(ctx, r.bin, args)
	if err != nil {
		return types.Fragment{}, err
	}
	frag, err := parseRecognizerOutput(out)
	if err != nil {
		return types.Fragment{}, types.E(types.KindExternalTool, "engine.transcribe", err)
	}

	frag.SegmentIndex = req.SegmentIndex
	shiftFragment(&frag, req.OffsetSec)
	return frag, nil
}

// recognizerDoc mirrors the tool's JSON output. Word scores arrive as
// either "score" or "probability" depending on the tool generation.
type recognizerDoc struct {
	Language string `json:"language"`
	Segments []struct {
		ID         int     `json:"id"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
		Words      []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Score       float64 `json:"score"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

func parseRecognizerOutput(out []byte) (types.Fragment, error) {
	var doc recognizerDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		return types.Fragment{}, err
	}

	frag := types.Fragment{Language: doc.Language}
	for _, s := range doc.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		u := types.Utterance{
			ID:         s.ID,
			Start:      s.Start,
			End:        s.End,
			Text:       text,
			Confidence: logprobConfidence(s.AvgLogprob),
		}
		for _, w := range s.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			u.Words = append(u.Words, types.Word{
				Word:       word,
				Start:      w.Start,
				End:        w.End,
				Confidence: math.Max(w.Score, w.Probability),
			})
		}
		frag.Segments = append(frag.Segments, u)
	}
	return frag, nil
}

// logprobConfidence maps a mean token log-probability into [0,1].
// A logprob of 0 means certainty; tools occasionally report small
// positive values which clamp to 1.
func logprobConfidence(avgLogprob float64) float64 {
	c := math.Exp(avgLogprob)
	if c > 1 {
		return 1
	}
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	return c
}

func shiftFragment(frag *types.Fragment, offsetSec float64) {
	if offsetSec == 0 {
		return
	}
	for i := range frag.Segments {
		frag.Segments[i].Start += offsetSec
		frag.Segments[i].End += offsetSec
		for j := range frag.Segments[i].Words {
			frag.Segments[i].Words[j].Start += offsetSec
			frag.Segments[i].Words[j].End += offsetSec
		}
	}
}
