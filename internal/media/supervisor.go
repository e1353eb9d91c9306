// SPDX-License-Identifier: MIT

// Package media produces the derived artifacts the editor needs after
// a job finishes: extracted audio, waveform peaks, playable proxies
// and a thumbnail sprite. Generation runs on a small worker pool in a
// documented priority order so the quickly-usable tiers land first.
package media

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/subwave-io/subwave/internal/audio"
	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/media/ffmpeg"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/types"
)

// DefaultWorkers caps concurrent generator processes when the config
// leaves the worker count unset.
const DefaultWorkers = 2

// peakBuckets is the bucket count of the stored waveform; the API
// resamples down to whatever the client asks for.
const peakBuckets = 2000

// ArtifactStatus is one artifact's externally visible state.
type ArtifactStatus struct {
	Kind      types.ArtifactKind  `json:"kind"`
	State     types.ArtifactState `json:"state"`
	Progress  float64             `json:"progress"`
	Error     string              `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type artifactEntry struct {
	state     types.ArtifactState
	progress  float64
	lastError string
	updatedAt time.Time
}

// Supervisor owns artifact generation and state. All methods are safe
// for concurrent use.
type Supervisor struct {
	root    *storage.Root
	bus     *bus.Bus
	ff      *ffmpeg.Runner
	prober  *ffmpeg.Prober
	workers int
	logger  zerolog.Logger
	now     func() time.Time

	// buildFn produces one artifact; swapped in tests.
	buildFn func(ctx context.Context, jobID, input string, kind types.ArtifactKind) error

	mu   sync.Mutex
	jobs map[string]map[types.ArtifactKind]*artifactEntry
	wg   sync.WaitGroup
}

// New creates an artifact supervisor.
func New(root *storage.Root, b *bus.Bus, ff *ffmpeg.Runner, prober *ffmpeg.Prober, cfg config.MediaConfig) *Supervisor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	s := &Supervisor{
		root:    root,
		bus:     b,
		ff:      ff,
		prober:  prober,
		workers: workers,
		logger:  log.WithComponent("media"),
		now:     time.Now,
		jobs:    make(map[string]map[types.ArtifactKind]*artifactEntry),
	}
	s.buildFn = s.build
	return s
}

// EnsureAll schedules every artifact of a job in priority order and
// returns once generation finished. Ready artifacts are skipped, a
// previously failed one is retried.
func (s *Supervisor) EnsureAll(ctx context.Context, jobID, input string) error {
	return s.ensure(ctx, jobID, input, types.AllArtifactKinds())
}

// EnsureAllAsync kicks every artifact of a job without blocking the
// caller; the pipeline uses it when a job completes so playback media
// is ready before the first request asks for it. Drain waits for the
// work, failures land in the per-artifact state.
func (s *Supervisor) EnsureAllAsync(jobID, input string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.EnsureAll(context.Background(), jobID, input); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).
				Msg("post-completion artifact generation failed")
		}
	}()
}

// Ensure generates one artifact (and, for peaks, its audio
// prerequisite) synchronously.
func (s *Supervisor) Ensure(ctx context.Context, jobID, input string, kind types.ArtifactKind) error {
	if !kind.IsValid() {
		return types.Ef(types.KindValidation, "media.ensure", "unknown artifact kind %q", kind)
	}
	return s.ensure(ctx, jobID, input, []types.ArtifactKind{kind})
}

func (s *Supervisor) ensure(ctx context.Context, jobID, input string, kinds []types.ArtifactKind) error {
	if err := s.root.EnsureJobDir(jobID); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	s.wg.Add(1)
	defer s.wg.Done()

	for _, kind := range kinds {
		if !s.claim(jobID, kind) {
			continue
		}
		g.Go(func() error {
			s.generate(ctx, jobID, input, kind)
			return nil
		})
	}
	return g.Wait()
}

// claim flips an artifact to generating. Returns false when it is
// already ready or another worker is on it.
func (s *Supervisor) claim(jobID string, kind types.ArtifactKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(jobID, kind)
	switch entry.state {
	case types.ArtifactReady, types.ArtifactGenerating:
		return false
	}
	entry.state = types.ArtifactGenerating
	entry.progress = 0
	entry.lastError = ""
	entry.updatedAt = s.now()
	return true
}

// entryLocked lazily creates the state entry, seeding it from disk so
// artifacts produced by an earlier process survive a restart.
func (s *Supervisor) entryLocked(jobID string, kind types.ArtifactKind) *artifactEntry {
	m := s.jobs[jobID]
	if m == nil {
		m = make(map[types.ArtifactKind]*artifactEntry)
		s.jobs[jobID] = m
	}
	entry := m[kind]
	if entry == nil {
		entry = &artifactEntry{state: types.ArtifactAbsent, updatedAt: s.now()}
		if fi, err := os.Stat(s.root.ArtifactPath(jobID, kind)); err == nil && fi.Size() > 0 {
			entry.state = types.ArtifactReady
			entry.progress = 100
		}
		m[kind] = entry
	}
	return entry
}

func (s *Supervisor) generate(ctx context.Context, jobID, input string, kind types.ArtifactKind) {
	began := s.now()
	err := s.buildFn(ctx, jobID, input, kind)

	outcome := "ok"
	s.mu.Lock()
	entry := s.entryLocked(jobID, kind)
	if err != nil {
		entry.state = types.ArtifactFailed
		entry.lastError = err.Error()
		outcome = "failed"
		if types.IsKind(err, types.KindCancelled) {
			outcome = "cancelled"
		}
	} else {
		entry.state = types.ArtifactReady
		entry.progress = 100
	}
	entry.updatedAt = s.now()
	s.mu.Unlock()

	metrics.ObserveArtifact(string(kind), outcome, s.now().Sub(began))
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Str("artifact", string(kind)).
			Msg("artifact generation failed")
		return
	}

	s.publishProgress(jobID, kind, 100)
	switch kind {
	case types.ArtifactPreview360p:
		s.bus.PublishSignal(jobID, types.SignalPreview360Complete, nil)
	case types.ArtifactProxy720p:
		s.bus.PublishSignal(jobID, types.SignalProxy720pComplete, nil)
	}
	s.logger.Info().Str("job_id", jobID).Str("artifact", string(kind)).
		Dur("took", s.now().Sub(began)).Msg("artifact ready")
}

func (s *Supervisor) build(ctx context.Context, jobID, input string, kind types.ArtifactKind) error {
	switch kind {
	case types.ArtifactAudioWAV:
		return s.buildAudio(ctx, jobID, input)
	case types.ArtifactPeaks:
		return s.buildPeaks(ctx, jobID, input)
	case types.ArtifactPreview360p:
		return s.buildProxy(ctx, jobID, input, kind, 360)
	case types.ArtifactProxy720p:
		return s.buildProxy(ctx, jobID, input, kind, 720)
	case types.ArtifactThumbnails:
		return s.buildThumbnails(ctx, jobID, input)
	default:
		return types.Ef(types.KindValidation, "media.build", "unknown artifact kind %q", kind)
	}
}

func (s *Supervisor) buildAudio(ctx context.Context, jobID, input string) error {
	out := s.root.AudioPath(jobID)
	if fi, err := os.Stat(out); err == nil && fi.Size() > 0 {
		return nil // the pipeline already extracted it
	}
	duration := s.probeDuration(ctx, input)
	args := ffmpeg.ExtractAudioArgs(input, out)
	return s.ff.Run(ctx, args, s.progressFunc(jobID, types.ArtifactAudioWAV, duration))
}

// buildPeaks folds the extracted WAV into min/max buckets. The audio
// artifact is its prerequisite: an in-flight extraction is awaited,
// a missing one generated inline.
func (s *Supervisor) buildPeaks(ctx context.Context, jobID, input string) error {
	if err := s.awaitAudio(ctx, jobID); err != nil {
		return err
	}
	wav := s.root.AudioPath(jobID)
	if _, err := os.Stat(wav); err != nil {
		if err := s.buildAudio(ctx, jobID, input); err != nil {
			return err
		}
	}

	clip, err := audio.ReadWAV(wav)
	if err != nil {
		return err
	}
	peaks, err := audio.ComputePeaks(clip, peakBuckets)
	if err != nil {
		return err
	}
	return storage.WriteJSONAtomic(s.root.ArtifactPath(jobID, types.ArtifactPeaks), peaks)
}

func (s *Supervisor) buildProxy(ctx context.Context, jobID, input string, kind types.ArtifactKind, height int) error {
	duration := s.probeDuration(ctx, input)
	out := s.root.ArtifactPath(jobID, kind)
	args := ffmpeg.ProxyArgs(input, height, out)
	return s.ff.Run(ctx, args, s.progressFunc(jobID, kind, duration))
}

// ThumbIndex describes the sprite grid layout for the client.
type ThumbIndex struct {
	Count       int     `json:"count"`
	Cols        int     `json:"cols"`
	TileWidth   int     `json:"tile_width"`
	IntervalSec float64 `json:"interval_sec"`
	Duration    float64 `json:"duration"`
	File        string  `json:"file"`
}

const (
	thumbCols      = 10
	thumbTileWidth = 160
	thumbMinCount  = 10
	thumbMaxCount  = 100
)

func (s *Supervisor) buildThumbnails(ctx context.Context, jobID, input string) error {
	duration := s.probeDuration(ctx, input)

	count := int(duration / 10)
	if count < thumbMinCount {
		count = thumbMinCount
	}
	if count > thumbMaxCount {
		count = thumbMaxCount
	}

	out := s.root.ArtifactPath(jobID, types.ArtifactThumbnails)
	args := ffmpeg.ThumbnailSpriteArgs(input, duration, count, thumbCols, thumbTileWidth, out)
	if err := s.ff.Run(ctx, args, nil); err != nil {
		return err
	}

	index := ThumbIndex{
		Count:       count,
		Cols:        thumbCols,
		TileWidth:   thumbTileWidth,
		IntervalSec: duration / float64(count),
		Duration:    duration,
		File:        storage.FileThumbs,
	}
	return storage.WriteJSONAtomic(s.root.ThumbIndexPath(jobID), index)
}

// awaitAudio blocks while a sibling worker is extracting the WAV so
// peaks never race a concurrent extraction of the same file.
func (s *Supervisor) awaitAudio(ctx context.Context, jobID string) error {
	for {
		s.mu.Lock()
		state := s.entryLocked(jobID, types.ArtifactAudioWAV).state
		s.mu.Unlock()
		if state != types.ArtifactGenerating {
			return nil
		}
		select {
		case <-ctx.Done():
			return types.E(types.KindCancelled, "media.peaks", ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *Supervisor) probeDuration(ctx context.Context, input string) float64 {
	if s.prober == nil {
		return 0
	}
	probe, err := s.prober.Probe(ctx, input)
	if err != nil {
		return 0
	}
	return probe.Duration
}

func (s *Supervisor) progressFunc(jobID string, kind types.ArtifactKind, duration float64) func(ffmpeg.Progress) {
	if duration <= 0 {
		return nil
	}
	last := time.Time{}
	return func(p ffmpeg.Progress) {
		pct := float64(p.OutTimeUS) / 1e6 / duration * 100
		if pct > 100 {
			pct = 100
		}
		if s.now().Sub(last) < 200*time.Millisecond {
			return
		}
		last = s.now()
		s.setProgress(jobID, kind, pct)
		s.publishProgress(jobID, kind, pct)
	}
}

func (s *Supervisor) setProgress(jobID string, kind types.ArtifactKind, pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entryLocked(jobID, kind)
	if entry.state == types.ArtifactGenerating && pct > entry.progress {
		entry.progress = pct
		entry.updatedAt = s.now()
	}
}

func (s *Supervisor) publishProgress(jobID string, kind types.ArtifactKind, pct float64) {
	s.bus.PublishJobProgress(bus.JobProgressPayload{
		ID:             jobID,
		PhasePercent:   pct,
		OverallPercent: pct,
		Artifact:       kind,
	})
}

// Status reports the per-artifact state of a job in priority order.
func (s *Supervisor) Status(jobID string) []ArtifactStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := types.AllArtifactKinds()
	out := make([]ArtifactStatus, 0, len(kinds))
	for _, kind := range kinds {
		entry := s.entryLocked(jobID, kind)
		out = append(out, ArtifactStatus{
			Kind:      kind,
			State:     entry.state,
			Progress:  entry.progress,
			Error:     entry.lastError,
			UpdatedAt: entry.updatedAt,
		})
	}
	return out
}

// BestAvailable resolves the playback source for a job: the highest
// proxy tier that is ready, falling back to the original file.
func (s *Supervisor) BestAvailable(jobID, source string) (string, types.ArtifactKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range []types.ArtifactKind{types.ArtifactProxy720p, types.ArtifactPreview360p} {
		if s.entryLocked(jobID, kind).state == types.ArtifactReady {
			return s.root.ArtifactPath(jobID, kind), kind
		}
	}
	return source, ""
}

// Forget drops the in-memory state of a job after a purge.
func (s *Supervisor) Forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Drain waits for in-flight generation to settle or the context to
// expire.
func (s *Supervisor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
