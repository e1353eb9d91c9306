// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/circuit"
	"github.com/subwave-io/subwave/internal/engine"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/queue"
	"github.com/subwave-io/subwave/internal/subtitle"
	"github.com/subwave-io/subwave/internal/types"
)

// transcribe walks the unprocessed segments in order, running each
// through the recognizer and the circuit engine's confidence gate.
// Every accepted segment is checkpointed and published before the
// next one starts, so a pause or crash never loses finished work.
func (j *jobRun) transcribe(ctx context.Context) error {
	if j.cp.TotalSegments == 0 {
		return nil
	}

	fuse := circuit.New(j.r.d.Circuit)
	total := j.cp.TotalSegments

	if err := j.switchRecognizer(ctx, j.r.d.Primary); err != nil {
		return err
	}
	defer j.releaseRecognizer()

	for {
		idx := j.cp.NextUnprocessed()
		if idx >= j.cp.TotalSegments {
			break
		}
		if err := j.interrupted(ctx); err != nil {
			return err
		}

		frag, marked, err := j.transcribeSegment(ctx, fuse, idx)
		if err != nil {
			return err
		}

		j.appendFragment(frag)
		j.cp.MarkProcessed(idx)
		if err := j.r.d.Journal.Save(j.id, j.cp); err != nil {
			return err
		}
		j.recordFragment(frag, idx)
		if marked {
			metrics.RecordSegment("marked")
		} else {
			metrics.RecordSegment("accepted")
		}

		processed := len(j.cp.ProcessedIndices)
		j.publishProgress(types.JobPhaseTranscribe,
			float64(processed)/float64(total)*100, processed, total, true)
	}
	return nil
}

// appendFragment merges one transcribed fragment into the in-memory
// checkpoint. A re-run of the same segment replaces its earlier take.
// The runner is the only writer of a running job's checkpoint, so the
// in-memory copy stays authoritative over the disk state.
func (j *jobRun) appendFragment(frag types.Fragment) {
	for i := range j.cp.UnalignedResults {
		if j.cp.UnalignedResults[i].SegmentIndex == frag.SegmentIndex {
			j.cp.UnalignedResults[i] = frag
			return
		}
	}
	j.cp.UnalignedResults = append(j.cp.UnalignedResults, frag)
}

// recordFragment splits the fragment into sentences and pushes them to
// the job channel. Sentences stay provisional while an alignment pass
// is still ahead.
func (j *jobRun) recordFragment(frag types.Fragment, idx int) {
	sentences := subtitle.SplitFragment(frag, j.sentenceConfig())
	j.r.d.Bus.PublishFragment(j.id, bus.FragmentPayload{
		SegmentIndex: idx,
		Language:     frag.Language,
		Sentences:    sentences,
		IsFinal:      !j.alignNeeded(),
	})

	if frag.Language != "" {
		j.r.d.Jobs.Update(j.id, func(job *types.Job) {
			if job.Language == "" {
				job.Language = frag.Language
			}
		})
	}
}

// transcribeSegment runs the recognize/decide loop for one segment
// until the circuit engine accepts a result. The returned bool marks
// a below-threshold acceptance.
func (j *jobRun) transcribeSegment(ctx context.Context, fuse *circuit.Engine, idx int) (types.Fragment, bool, error) {
	seg := &j.cp.Segments[idx]
	attemptTier := seg.Tier
	fallbackLeft := j.r.d.Fallback != nil

	for {
		frag, err := j.recognize(ctx, idx)
		if err != nil {
			return types.Fragment{}, false, err
		}

		dec := fuse.Decide(circuit.Attempt{
			SegmentIndex:      idx,
			Confidence:        frag.Confidence(),
			NoiseTag:          circuit.HasNoiseTag(frag),
			Tier:              attemptTier,
			FallbackAvailable: fallbackLeft,
		})

		if dec.Tripped {
			action := j.settings.OnBreak
			if action == "" {
				action = types.BreakContinue
			}
			metrics.RecordCircuitBreak(string(action))
			j.r.d.Bus.PublishSignal(j.id, types.SignalCircuitBreak, map[string]string{
				"action":    string(action),
				"rationale": dec.Rationale,
				"segment":   strconv.Itoa(idx),
			})
			j.logger.Warn().Str("action", string(action)).Str("rationale", dec.Rationale).
				Msg("circuit break")

			switch action {
			case types.BreakFail:
				return types.Fragment{}, false, types.Ef(types.KindCircuitBreak,
					"pipeline.transcribe", "circuit break at segment %d: %s", idx, dec.Rationale)
			case types.BreakPause:
				j.persistCheckpoint()
				return types.Fragment{}, false, queue.ErrPaused
			case types.BreakFallbackOriginal:
				j.stripSeparation()
				return frag, true, nil
			default: // continue: accept what we have, marked
				return frag, true, nil
			}
		}

		switch dec.Outcome {
		case types.FuseAccept:
			if j.rec != j.r.d.Primary {
				if err := j.switchRecognizer(ctx, j.r.d.Primary); err != nil {
					return types.Fragment{}, false, err
				}
			}
			return frag, dec.Marked, nil

		case types.FuseUpgradeSeparation:
			metrics.RecordSegmentRetry("low_confidence")
			if err := j.escalate(ctx, idx, attemptTier, dec.NextTier, dec.Rationale); err != nil {
				if types.IsKind(err, types.KindCancelled) {
					return types.Fragment{}, false, err
				}
				j.logger.Warn().Err(err).Int("segment", idx).
					Msg("separation upgrade failed, retrying on current audio")
			}
			attemptTier = dec.NextTier

		case types.FuseRecognizerRetry:
			metrics.RecordSegmentRetry("recognizer_fallback")
			fallbackLeft = false
			if err := j.switchRecognizer(ctx, j.r.d.Fallback); err != nil {
				return types.Fragment{}, false, err
			}

		default:
			return frag, dec.Marked, nil
		}
	}
}

// recognize runs the current recognizer over one chunk with bounded
// retries for transient tool failures.
func (j *jobRun) recognize(ctx context.Context, idx int) (types.Fragment, error) {
	seg := j.cp.Segments[idx]
	req := engine.TranscribeRequest{
		AudioPath:    j.chunkPath(idx),
		SegmentIndex: idx,
		OffsetSec:    float64(seg.StartMS) / 1000,
		Settings:     j.settings,
	}

	var last error
	retries := j.r.d.Circuit.SegmentRetries
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			metrics.RecordSegmentRetry("tool_error")
			if err := sleepCtx(ctx, j.r.retryBase<<uint(attempt-1)); err != nil {
				return types.Fragment{}, types.E(types.KindCancelled, "pipeline.recognize", err)
			}
		}
		frag, err := j.rec.Transcribe(ctx, req)
		if err == nil {
			frag.SegmentIndex = idx
			return frag, nil
		}
		if types.IsKind(err, types.KindCancelled) {
			return types.Fragment{}, err
		}
		last = err
		j.logger.Warn().Err(err).Int("segment", idx).Int("attempt", attempt+1).
			Msg("transcription attempt failed")
	}
	return types.Fragment{}, last
}

// escalate re-separates the raw chunk one tier up and rewires the
// segment to the new take. Model handles never overlap: the resident
// recognizer is released for the duration of the separator run so a
// single-slot host cannot deadlock.
func (j *jobRun) escalate(ctx context.Context, idx int, from, to types.SeparationTier, rationale string) error {
	if j.r.d.Separator == nil {
		return types.Ef(types.KindValidation, "pipeline.escalate", "no separator configured")
	}
	j.releaseRecognizer()

	err := func() error {
		handle, err := j.r.d.Models.Acquire(ctx, types.ModelSeparator, j.r.d.Separators.ModelForTier(to))
		if err != nil {
			return err
		}
		defer handle.Release()

		seg := &j.cp.Segments[idx]
		out := j.r.d.Root.SeparatedSegmentPath(j.id, idx, to)
		if err := j.r.d.Separator.Separate(ctx, seg.File, out, to); err != nil {
			return err
		}
		seg.Tier = to
		seg.Separated = true
		return nil
	}()

	if reacquire := j.switchRecognizer(ctx, j.rec); reacquire != nil {
		return reacquire
	}
	if err != nil {
		return err
	}

	metrics.RecordEscalation(string(to))
	j.r.d.Bus.PublishSignal(j.id, types.SignalModelEscalated, map[string]string{
		"segment":   strconv.Itoa(idx),
		"from":      string(from),
		"to":        string(to),
		"rationale": rationale,
	})
	return nil
}

// stripSeparation reverts all unprocessed segments to their raw cuts.
// Used by the fallback_original break action.
func (j *jobRun) stripSeparation() {
	for i := range j.cp.Segments {
		if j.cp.IsProcessed(i) {
			continue
		}
		j.cp.Segments[i].Tier = types.TierNone
		j.cp.Segments[i].Separated = false
	}
	j.persistCheckpoint()
	j.logger.Info().Msg("separation disabled for remaining segments")
}

// switchRecognizer swaps the resident recognizer handle. Safe to call
// with the already-active recognizer, in which case the handle is
// re-acquired if it was released.
func (j *jobRun) switchRecognizer(ctx context.Context, rec engine.Recognizer) error {
	if rec == nil {
		return types.Ef(types.KindInternal, "pipeline.transcribe", "no recognizer configured")
	}
	if j.rec == rec && j.recHandle != nil {
		return nil
	}
	j.releaseRecognizer()

	kind := types.ModelRecognizerPrimary
	if j.r.d.Fallback != nil && rec == j.r.d.Fallback {
		kind = types.ModelRecognizerFallback
	}
	handle, err := j.r.d.Models.Acquire(ctx, kind, rec.Name())
	if err != nil {
		return err
	}
	j.rec = rec
	j.recHandle = handle
	return nil
}

func (j *jobRun) releaseRecognizer() {
	if j.recHandle != nil {
		j.recHandle.Release()
		j.recHandle = nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (j *jobRun) sentenceConfig() subtitle.SplitConfig {
	c := j.r.d.Sentence
	return subtitle.SplitConfig{
		PauseSec: c.PauseSec,
		MaxSec:   c.MaxSec,
		MaxChars: c.MaxChars,
		MinChars: c.MinChars,
	}
}
