// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/cache"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/engine"
	"github.com/subwave-io/subwave/internal/engine/supervisor"
	"github.com/subwave-io/subwave/internal/journal"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/media/ffmpeg"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/queue"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/types"
)

// JobStore is the slice of the scheduler the runner needs: reading a
// job snapshot and mutating the live record under the queue lock.
type JobStore interface {
	Get(id string) (*types.Job, error)
	Update(id string, fn func(*types.Job))
}

// ArtifactScheduler is the slice of the media supervisor the runner
// needs: a fire-and-forget kick of a finished job's artifacts.
type ArtifactScheduler interface {
	EnsureAllAsync(jobID, input string)
}

// Deps wires the runner to its collaborators. Root, Journal, Bus,
// Jobs, FFmpeg, Models and Primary are required; Fallback, Aligner,
// Separator and Cache are optional and disable the corresponding
// behavior when nil.
type Deps struct {
	Root    *storage.Root
	Journal *journal.Store
	Bus     *bus.Bus
	Jobs    JobStore

	FFmpeg *ffmpeg.Runner
	Prober *ffmpeg.Prober
	Models *supervisor.Supervisor

	Primary   engine.Recognizer
	Fallback  engine.Recognizer
	Aligner   engine.Aligner
	Separator engine.Separator

	Cache cache.Cache

	// Artifacts, when set, gets kicked after a successful render so
	// playback media generates ahead of the first request.
	Artifacts ArtifactScheduler

	Hardware   types.HardwareTier
	Circuit    config.CircuitConfig
	Musicality config.MusicalityConfig
	Split      config.SplitConfig
	Sentence   config.SentenceConfig
	Separators config.SeparatorConfig
}

// Runner executes one job at a time on behalf of the scheduler.
type Runner struct {
	d      Deps
	logger zerolog.Logger

	// retryBase is the first back-off delay for transient segment
	// failures; doubled per attempt. Shortened in tests.
	retryBase time.Duration
}

// New creates a pipeline runner. A nil Cache degrades to no caching.
func New(d Deps) *Runner {
	if d.Cache == nil {
		d.Cache = cache.NewNoOp()
	}
	return &Runner{
		d:         d,
		logger:    log.WithComponent("pipeline"),
		retryBase: 500 * time.Millisecond,
	}
}

// Run executes the job until it completes, pauses, is canceled or
// fails. It satisfies queue.Runner: queue.ErrPaused reports a
// cooperative pause, a cancelled-kind error a cancellation, any other
// error a failure.
func (r *Runner) Run(ctx context.Context, jobID string, ctl *queue.Run) error {
	job, err := r.d.Jobs.Get(jobID)
	if err != nil {
		return err
	}

	j := &jobRun{
		r:        r,
		id:       jobID,
		ctl:      ctl,
		input:    job.InputPath,
		settings: job.Settings,
		limiter:  rate.NewLimiter(rate.Every(progressInterval), 1),
		logger:   r.logger.With().Str("job_id", jobID).Logger(),
	}

	cp, err := r.d.Journal.Load(jobID)
	switch {
	case err == nil:
		// The checkpoint's settings snapshot is authoritative for a
		// resumed run; the API gates identity changes upstream.
		j.cp = cp
		j.settings = cp.OriginalSettings
	case errors.Is(err, journal.ErrNotFound), errors.Is(err, journal.ErrCorrupt):
		// Fresh run. A corrupt checkpoint was quarantined by the store.
	default:
		return err
	}

	j.weights = j.computeWeights()
	return j.run(log.ContextWithJobID(ctx, jobID))
}

// jobRun carries the state of one execution. It lives on a single
// goroutine; only the ctl handle is touched concurrently.
type jobRun struct {
	r        *Runner
	id       string
	ctl      *queue.Run
	input    string
	settings types.EngineSettings
	logger   zerolog.Logger

	cp       *journal.Checkpoint
	duration float64
	weights  Weights
	aligned  *types.AlignedResult

	// recognizer handle bookkeeping, see switchRecognizer.
	rec       engine.Recognizer
	recHandle *supervisor.Handle

	lastOverall float64

	// limiter throttles non-forced progress publishes.
	limiter *rate.Limiter
}

type stageFunc struct {
	phase types.JobPhase
	fn    func(context.Context) error
}

func (j *jobRun) run(ctx context.Context) error {
	stages := []stageFunc{
		{types.JobPhaseExtract, j.extract},
		{types.JobPhaseSplit, j.split},
		{types.JobPhaseBGMDetect, j.bgmDetect},
		{types.JobPhaseSeparate, j.separate},
		{types.JobPhaseTranscribe, j.transcribe},
		{types.JobPhaseAlign, j.align},
		{types.JobPhaseRender, j.render},
	}

	start := types.JobPhaseExtract
	if j.cp != nil && j.cp.Phase.Order() > start.Order() {
		start = j.cp.Phase
		j.logger.Info().Str("phase", start.String()).
			Int("processed", len(j.cp.ProcessedIndices)).
			Msg("resuming from checkpoint")
	}

	for _, st := range stages {
		if st.phase.Order() < start.Order() {
			continue
		}
		if err := j.interrupted(ctx); err != nil {
			return err
		}
		j.enterPhase(st.phase)

		began := time.Now()
		err := st.fn(ctx)
		metrics.ObserveStageDuration(st.phase.String(), time.Since(began))
		if err != nil {
			return err
		}
	}
	return nil
}

// interrupted checks the cooperative pause flag and the run context.
// Both outcomes persist the current checkpoint first so no completed
// segment is lost.
func (j *jobRun) interrupted(ctx context.Context) error {
	if j.ctl != nil && j.ctl.PauseRequested() {
		j.persistCheckpoint()
		return queue.ErrPaused
	}
	select {
	case <-ctx.Done():
		j.persistCheckpoint()
		return types.E(types.KindCancelled, "pipeline.run", ctx.Err())
	default:
		return nil
	}
}

func (j *jobRun) persistCheckpoint() {
	if j.cp == nil {
		return
	}
	if err := j.r.d.Journal.Save(j.id, j.cp); err != nil {
		j.logger.Error().Err(err).Msg("checkpoint save failed")
	}
}

// enterPhase records the transition on the job and announces it.
func (j *jobRun) enterPhase(phase types.JobPhase) {
	if j.cp != nil && phase.Order() > j.cp.Phase.Order() {
		j.cp.Phase = phase
		j.persistCheckpoint()
	}
	j.r.d.Jobs.Update(j.id, func(job *types.Job) {
		job.Phase = phase
		job.PhaseProgress = 0
	})
	j.r.d.Bus.PublishJobStatus(bus.JobStatusPayload{
		ID:     j.id,
		Status: types.JobStatusProcessing,
		Phase:  phase,
	})
	j.logger.Info().Str("phase", phase.String()).Msg("stage started")
	j.publishProgress(phase, 0, 0, 0, true)
}

// publishProgress folds phase progress into the weighted overall
// percentage. High-frequency callers pass force=false and get
// throttled; stage transitions and segment completions always go out.
func (j *jobRun) publishProgress(phase types.JobPhase, phasePct float64, processed, total int, force bool) {
	if phasePct < 0 {
		phasePct = 0
	} else if phasePct > 100 {
		phasePct = 100
	}

	overall := j.weights.CompletedBefore(phase) + j.weights.For(phase)*phasePct/100
	if overall < j.lastOverall {
		overall = j.lastOverall // monotonic within one run
	}
	overall = roundTenth(overall)
	phasePct = roundTenth(phasePct)

	if !force && !j.limiter.Allow() {
		return
	}
	j.lastOverall = overall

	j.r.d.Jobs.Update(j.id, func(job *types.Job) {
		job.Progress = overall
		job.PhaseProgress = phasePct
		if total > 0 {
			job.ProcessedSegments = processed
			job.TotalSegments = total
		}
	})
	j.r.d.Bus.PublishJobProgress(bus.JobProgressPayload{
		ID:             j.id,
		Phase:          phase,
		PhasePercent:   phasePct,
		OverallPercent: overall,
		Processed:      processed,
		Total:          total,
	})
}

const progressInterval = 200 * time.Millisecond

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// computeWeights derives the weight vector from what is known so far.
// Before BGM detection the variable shares default to zero; afterwards
// they are reconstructed from the per-segment tiers in the checkpoint,
// which keeps the vector stable across restarts.
func (j *jobRun) computeWeights() Weights {
	alignNeeded := !j.settings.WordTimestamps && j.r.d.Aligner != nil

	sepFrac, retryFrac := 0.0, 0.0
	if j.cp != nil && j.cp.TotalSegments > 0 && j.cp.Phase.Order() > types.JobPhaseBGMDetect.Order() {
		separating := 0
		for _, seg := range j.cp.Segments {
			if seg.Tier != types.TierNone {
				separating++
			}
		}
		sepFrac = float64(separating) / float64(j.cp.TotalSegments)
		if j.r.d.Fallback != nil {
			// Segments under BGM are the likely fallback candidates;
			// assume around half of them will need the retry.
			retryFrac = sepFrac / 2
		}
	}
	return ComputeWeights(sepFrac, retryFrac, alignNeeded)
}

// alignNeeded reports whether a dedicated alignment pass runs. Native
// word timestamps from the recognizer make it redundant.
func (j *jobRun) alignNeeded() bool {
	return !j.settings.WordTimestamps && j.r.d.Aligner != nil
}
