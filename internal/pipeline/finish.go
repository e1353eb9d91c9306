// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/subtitle"
	"github.com/subwave-io/subwave/internal/types"
)

// align runs the forced aligner over the accumulated fragments and
// writes the aligned result artifact. The payload is deliberately not
// pushed through the bus; subscribers get an alignment_ready signal
// and refetch over HTTP. Alignment failure is a quality degradation,
// not a job failure: the recognizer's own timings remain usable.
func (j *jobRun) align(ctx context.Context) error {
	if !j.alignNeeded() || len(j.cp.UnalignedResults) == 0 {
		return nil
	}

	fragments := make([]types.Fragment, len(j.cp.UnalignedResults))
	copy(fragments, j.cp.UnalignedResults)
	sort.Slice(fragments, func(a, b int) bool {
		return fragments[a].SegmentIndex < fragments[b].SegmentIndex
	})

	handle, err := j.r.d.Models.Acquire(ctx, types.ModelAligner, "aligner")
	if err != nil {
		return err
	}
	res, alignErr := j.r.d.Aligner.Align(ctx, j.r.d.Root.AudioPath(j.id), fragments)
	handle.Release()

	if alignErr != nil {
		if types.IsKind(alignErr, types.KindCancelled) {
			return alignErr
		}
		j.logger.Warn().Err(alignErr).Msg("alignment failed, keeping recognizer timings")
		return nil
	}

	res.JobID = j.id
	res.AlignedAt = time.Now().UTC()
	if res.Language == "" {
		res.Language = j.detectedLanguage(fragments)
	}
	if err := storage.WriteJSONAtomic(j.r.d.Root.AlignedPath(j.id), res); err != nil {
		return err
	}
	j.aligned = res
	j.r.d.Bus.PublishSignal(j.id, types.SignalAlignmentReady, nil)
	j.publishProgress(types.JobPhaseAlign, 100, 0, 0, true)
	return nil
}

// render assembles the final sentence list, tags problem segments and
// writes the subtitle file.
func (j *jobRun) render(ctx context.Context) error {
	if err := j.interrupted(ctx); err != nil {
		return err
	}

	sentences := j.finalSentences()
	j.markProblems(sentences)

	out := j.r.d.Root.OutputPath(j.id)
	if err := storage.WriteFileAtomic(out, subtitle.RenderSRT(sentences)); err != nil {
		return err
	}

	j.r.d.Jobs.Update(j.id, func(job *types.Job) {
		job.OutputPath = out
	})
	j.publishProgress(types.JobPhaseRender, 100, 0, 0, true)
	j.logger.Info().Str("output", out).Int("sentences", len(sentences)).
		Msg("subtitle rendered")

	j.cp.Phase = types.JobPhaseComplete
	if err := j.r.d.Journal.Save(j.id, j.cp); err != nil {
		return err
	}
	if j.r.d.Artifacts != nil {
		j.r.d.Artifacts.EnsureAllAsync(j.id, j.input)
	}
	return nil
}

// finalSentences prefers aligned word timings over raw recognizer
// output. On a resumed run the aligned artifact is reloaded from disk.
func (j *jobRun) finalSentences() []types.Sentence {
	if j.aligned == nil {
		var res types.AlignedResult
		err := storage.ReadJSON(j.r.d.Root.AlignedPath(j.id), &res)
		switch {
		case err == nil:
			j.aligned = &res
		case errors.Is(err, os.ErrNotExist):
		default:
			j.logger.Warn().Err(err).Msg("aligned artifact unreadable, using recognizer timings")
		}
	}

	cfg := j.sentenceConfig()
	if j.aligned != nil {
		if len(j.aligned.WordSegments) > 0 {
			return subtitle.SplitWords(j.aligned.WordSegments, cfg)
		}
		return utteranceSentences(j.aligned.Segments)
	}

	fragments := make([]types.Fragment, len(j.cp.UnalignedResults))
	copy(fragments, j.cp.UnalignedResults)
	sort.Slice(fragments, func(a, b int) bool {
		return fragments[a].SegmentIndex < fragments[b].SegmentIndex
	})

	var sentences []types.Sentence
	for _, frag := range fragments {
		sentences = append(sentences, subtitle.SplitFragment(frag, cfg)...)
	}
	return sentences
}

// markProblems appends the configured suffix to sentences whose
// confidence stayed below the accept threshold.
func (j *jobRun) markProblems(sentences []types.Sentence) {
	suffix := j.r.d.Sentence.ProblemSuffix
	if suffix == "" {
		return
	}
	threshold := j.r.d.Circuit.AcceptConfidence
	for i := range sentences {
		s := &sentences[i]
		if s.Confidence > 0 && s.Confidence < threshold && !strings.HasSuffix(s.Text, suffix) {
			s.Text += suffix
		}
	}
}

func utteranceSentences(utterances []types.Utterance) []types.Sentence {
	sentences := make([]types.Sentence, 0, len(utterances))
	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		sentences = append(sentences, types.Sentence{
			Text:       text,
			Start:      u.Start,
			End:        u.End,
			Confidence: u.Confidence,
			Words:      u.Words,
		})
	}
	return sentences
}

func (j *jobRun) detectedLanguage(fragments []types.Fragment) string {
	for _, f := range fragments {
		if f.Language != "" {
			return f.Language
		}
	}
	return j.settings.Language
}
