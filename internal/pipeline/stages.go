// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/subwave-io/subwave/internal/audio"
	"github.com/subwave-io/subwave/internal/cache"
	"github.com/subwave-io/subwave/internal/circuit"
	"github.com/subwave-io/subwave/internal/journal"
	"github.com/subwave-io/subwave/internal/media/ffmpeg"
	"github.com/subwave-io/subwave/internal/types"
)

// extract demuxes the source audio into a canonical mono 16 kHz WAV.
func (j *jobRun) extract(ctx context.Context) error {
	probe, err := j.r.d.Prober.Probe(ctx, j.input)
	if err != nil {
		return err
	}
	if !probe.HasAudio {
		return types.Ef(types.KindValidation, "pipeline.extract",
			"input %q has no audio stream", j.input)
	}
	j.duration = probe.Duration

	if err := j.r.d.Root.EnsureJobDir(j.id); err != nil {
		return err
	}

	audioPath := j.r.d.Root.AudioPath(j.id)
	args := ffmpeg.ExtractAudioArgs(j.input, audioPath)
	return j.r.d.FFmpeg.Run(ctx, args, func(p ffmpeg.Progress) {
		if j.duration <= 0 {
			return
		}
		pct := float64(p.OutTimeUS) / 1e6 / j.duration * 100
		j.publishProgress(types.JobPhaseExtract, pct, 0, 0, false)
	})
}

// split runs silence detection over the extracted audio, plans the
// segment boundaries and cuts one WAV chunk per segment. The job's
// checkpoint is born at the end of this stage.
func (j *jobRun) split(ctx context.Context) error {
	audioPath := j.r.d.Root.AudioPath(j.id)
	if j.duration <= 0 {
		probe, err := j.r.d.Prober.Probe(ctx, audioPath)
		if err != nil {
			return err
		}
		j.duration = probe.Duration
	}

	cfg := j.r.d.Split
	silences, err := j.r.d.FFmpeg.SilenceScan(ctx, audioPath, cfg.SilenceNoiseDB, cfg.SilenceMinSec)
	if err != nil {
		return err
	}
	intervals := make([]audio.Interval, len(silences))
	for i, s := range silences {
		intervals[i] = audio.Interval{Start: s.Start, End: s.End}
	}

	plan := audio.PlanSegments(j.duration, intervals, audio.SegmentPlanConfig{
		MaxSec:       cfg.MaxSegmentSec,
		TargetSec:    cfg.TargetSegmentSec,
		PadMS:        cfg.PadMS,
		MinRegionSec: audio.DefaultSegmentPlanConfig().MinRegionSec,
	})

	for i := range plan {
		if err := j.interrupted(ctx); err != nil {
			return err
		}
		out := j.r.d.Root.SegmentPath(j.id, i)
		args := ffmpeg.CutSegmentArgs(audioPath, plan[i].StartMS, plan[i].DurationMS, out)
		if err := j.r.d.FFmpeg.Run(ctx, args, nil); err != nil {
			return err
		}
		plan[i].File = out
		j.publishProgress(types.JobPhaseSplit, float64(i+1)/float64(len(plan))*100, 0, 0, false)
	}

	cp := journal.New(j.id, j.settings)
	cp.Phase = types.JobPhaseBGMDetect
	cp.TotalSegments = len(plan)
	cp.Segments = plan
	if err := j.r.d.Journal.Save(j.id, cp); err != nil {
		return err
	}
	j.cp = cp

	j.r.d.Jobs.Update(j.id, func(job *types.Job) {
		job.TotalSegments = len(plan)
	})
	j.logger.Info().Int("segments", len(plan)).Float64("duration_sec", j.duration).
		Msg("segment plan ready")
	return nil
}

// bgmDetect scores the musicality of every chunk on CPU and resolves
// the initial separation tier per segment from policy, BGM level and
// hardware capability.
func (j *jobRun) bgmDetect(ctx context.Context) error {
	levels := map[types.BGMLevel]int{}
	tiers := map[types.SeparationTier]int{}
	separating := 0

	for i := range j.cp.Segments {
		if err := j.interrupted(ctx); err != nil {
			return err
		}
		seg := &j.cp.Segments[i]

		feats, err := j.features(ctx, seg.File)
		if err != nil {
			// A chunk that cannot be analyzed is transcribed raw.
			j.logger.Warn().Err(err).Int("segment", i).Msg("musicality analysis failed")
			seg.Tier = types.TierNone
			levels[types.BGMNone]++
			tiers[types.TierNone]++
			continue
		}
		judgment := circuit.Judge(feats, j.r.d.Musicality)
		tier := circuit.InitialTier(j.settings.Separation, judgment.Level, j.r.d.Hardware)
		seg.Tier = tier

		levels[judgment.Level]++
		tiers[tier]++
		if tier != types.TierNone {
			separating++
		}
		total := len(j.cp.Segments)
		j.publishProgress(types.JobPhaseBGMDetect, float64(i+1)/float64(total)*100, 0, 0, false)
	}

	if err := j.r.d.Journal.Save(j.id, j.cp); err != nil {
		return err
	}

	j.r.d.Bus.PublishSignal(j.id, types.SignalBGMDetected, map[string]string{
		"none":  strconv.Itoa(levels[types.BGMNone]),
		"light": strconv.Itoa(levels[types.BGMLight]),
		"heavy": strconv.Itoa(levels[types.BGMHeavy]),
	})
	j.r.d.Bus.PublishSignal(j.id, types.SignalSeparationStrategy, map[string]string{
		"policy":     string(j.settings.Separation),
		"hardware":   string(j.r.d.Hardware),
		"separating": strconv.Itoa(separating),
		"total":      strconv.Itoa(len(j.cp.Segments)),
	})

	// The separation fraction is known now; lock in the weight vector.
	j.cp.Phase = types.JobPhaseSeparate
	j.weights = j.computeWeights()
	return j.r.d.Journal.Save(j.id, j.cp)
}

// separate runs the vocal separator over every segment whose resolved
// tier asks for it, grouped per tier so each model is loaded once.
// A failed separation is not fatal: the raw chunk is used instead and
// the circuit engine gets its chance to escalate later.
func (j *jobRun) separate(ctx context.Context) error {
	if j.r.d.Separator == nil {
		return nil
	}

	pending := 0
	for _, seg := range j.cp.Segments {
		if seg.Tier != types.TierNone && !seg.Separated {
			pending++
		}
	}
	if pending == 0 {
		return nil
	}

	done := 0
	for _, tier := range []types.SeparationTier{types.TierWeak, types.TierStrong, types.TierFallback} {
		if err := j.separateTier(ctx, tier, pending, &done); err != nil {
			return err
		}
	}
	return j.r.d.Journal.Save(j.id, j.cp)
}

func (j *jobRun) separateTier(ctx context.Context, tier types.SeparationTier, pending int, done *int) error {
	indices := make([]int, 0, len(j.cp.Segments))
	for i, seg := range j.cp.Segments {
		if seg.Tier == tier && !seg.Separated && !j.cp.IsProcessed(i) {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return nil
	}

	handle, err := j.r.d.Models.Acquire(ctx, types.ModelSeparator, j.r.d.Separators.ModelForTier(tier))
	if err != nil {
		return err
	}
	defer handle.Release()

	for _, i := range indices {
		if err := j.interrupted(ctx); err != nil {
			return err
		}
		seg := &j.cp.Segments[i]
		out := j.r.d.Root.SeparatedSegmentPath(j.id, i, tier)
		if err := j.r.d.Separator.Separate(ctx, seg.File, out, tier); err != nil {
			if types.IsKind(err, types.KindCancelled) {
				return err
			}
			j.logger.Warn().Err(err).Int("segment", i).Str("tier", string(tier)).
				Msg("separation failed, using raw chunk")
		} else {
			seg.Separated = true
		}
		*done++
		j.publishProgress(types.JobPhaseSeparate, float64(*done)/float64(pending)*100, 0, 0, false)
	}
	return nil
}

// chunkPath resolves the audio file transcription should read for a
// segment: the separated take when one exists, the raw cut otherwise.
func (j *jobRun) chunkPath(index int) string {
	seg := j.cp.Segments[index]
	if seg.Separated && seg.Tier != types.TierNone {
		return j.r.d.Root.SeparatedSegmentPath(j.id, index, seg.Tier)
	}
	return seg.File
}

// features memoizes per-chunk spectral analysis keyed on file identity
// so a restarted job skips straight past already-analyzed chunks.
func (j *jobRun) features(ctx context.Context, path string) (audio.Features, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return audio.Features{}, types.E(types.KindIO, "pipeline.features", err)
	}
	key := cache.FileKey("features", path, fi)
	if f, ok := cache.GetJSON[audio.Features](ctx, j.r.d.Cache, key); ok {
		return f, nil
	}

	clip, err := audio.ReadWAV(path)
	if err != nil {
		return audio.Features{}, err
	}
	f := audio.Analyze(clip)
	cache.SetJSON(ctx, j.r.d.Cache, key, f, time.Hour)
	return f, nil
}
