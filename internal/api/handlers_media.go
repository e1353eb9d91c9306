// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/subwave-io/subwave/internal/audio"
	"github.com/subwave-io/subwave/internal/cache"
	"github.com/subwave-io/subwave/internal/media"
	"github.com/subwave-io/subwave/internal/media/ffmpeg"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/subtitle"
	"github.com/subwave-io/subwave/internal/types"
)

type mediaArtifactStatus = media.ArtifactStatus

func (s *Server) mediaStatus(jobID string) []mediaArtifactStatus {
	if s.d.Media == nil {
		return nil
	}
	return s.d.Media.Status(jobID)
}

// jobInput resolves the source file of a job, preferring the
// scheduler's view and falling back to the on-disk input.
func (s *Server) jobInput(jobID string) (string, error) {
	if job, err := s.d.Queue.Get(jobID); err == nil && job.InputPath != "" {
		if _, statErr := os.Stat(job.InputPath); statErr == nil {
			return job.InputPath, nil
		}
	}
	return s.d.Root.FindInput(jobID)
}

// handleMediaVideo serves the highest ready proxy tier, falling back
// to the source container. net/http handles byte ranges.
func (s *Server) handleMediaVideo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	input, err := s.jobInput(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	path, tier := s.d.Media.BestAvailable(jobID, input)
	if tier != "" {
		w.Header().Set("X-Subwave-Tier", tier.String())
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleMediaAudio(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	path := s.d.Root.AudioPath(jobID)
	if _, err := os.Stat(path); err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Server) handleMediaPeaks(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var peaks audio.Peaks
	if err := storage.ReadJSON(s.d.Root.ArtifactPath(jobID, types.ArtifactPeaks), &peaks); err != nil {
		respondError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("samples"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, r, types.Ef(types.KindValidation, "api.peaks",
				"invalid samples %q", raw))
			return
		}
		peaks = *peaks.Resample(n)
	}
	writeJSON(w, http.StatusOK, peaks)
}

// handleMediaThumbnails serves the sprite image with ?sprite=true and
// the tile index otherwise.
func (s *Server) handleMediaThumbnails(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if sprite, _ := strconv.ParseBool(r.URL.Query().Get("sprite")); sprite {
		path := s.d.Root.ArtifactPath(jobID, types.ArtifactThumbnails)
		if _, err := os.Stat(path); err != nil {
			respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
		return
	}

	var index media.ThumbIndex
	if err := storage.ReadJSON(s.d.Root.ThumbIndexPath(jobID), &index); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, index)
}

func (s *Server) handleMediaSRTGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	path := s.d.Root.OutputPath(jobID)
	if _, err := os.Stat(path); err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	http.ServeFile(w, r, path)
}

// handleMediaSRTPost saves an edited subtitle. The body is raw SRT; it
// must parse before it replaces the rendered output.
func (s *Server) handleMediaSRTPost(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.d.Queue.Get(jobID); err != nil {
		respondError(w, r, err)
		return
	}

	body, err := readBody(r, 16<<20)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sentences, err := subtitle.ParseSRT(body)
	if err != nil {
		respondError(w, r, types.E(types.KindValidation, "api.srt_save", err))
		return
	}
	if err := subtitle.Validate(sentences); err != nil {
		respondError(w, r, types.E(types.KindValidation, "api.srt_save", err))
		return
	}
	if err := storage.WriteFileAtomic(s.d.Root.OutputPath(jobID), subtitle.RenderSRT(sentences)); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true, "sentences": len(sentences)})
}

// handleMediaSubtitles re-renders the canonical sentence form in the
// requested export format.
func (s *Server) handleMediaSubtitles(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = "srt"
	}
	format, err := subtitle.ParseFormat(raw)
	if err != nil {
		respondError(w, r, types.E(types.KindValidation, "api.subtitles", err))
		return
	}
	data, err := os.ReadFile(s.d.Root.OutputPath(jobID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	sentences, err := subtitle.ParseSRT(data)
	if err != nil {
		respondError(w, r, types.E(types.KindInternal, "api.subtitles", err))
		return
	}
	var lang string
	if job, jerr := s.d.Queue.Get(jobID); jerr == nil {
		lang = job.Language
	}
	out, err := subtitle.Render(sentences, format, lang)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	_, _ = w.Write(out)
}

// handleMediaInfo probes the source container, memoizing by
// path+size+mtime.
func (s *Server) handleMediaInfo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.d.Prober == nil {
		respondError(w, r, types.Ef(types.KindValidation, "api.media_info",
			"no prober configured"))
		return
	}
	input, err := s.jobInput(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	fi, err := os.Stat(input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	key := cache.FileKey("probe", input, fi)
	if res, ok := cache.GetJSON[ffmpeg.ProbeResult](r.Context(), s.d.Cache, key); ok {
		writeJSON(w, http.StatusOK, res)
		return
	}
	res, err := s.d.Prober.Probe(r.Context(), input)
	if err != nil {
		respondError(w, r, err)
		return
	}
	cache.SetJSON(r.Context(), s.d.Cache, key, *res, s.cacheTTL())
	writeJSON(w, http.StatusOK, *res)
}

type progressiveStatusResponse struct {
	Artifacts []mediaArtifactStatus `json:"artifacts"`
	BestTier  types.ArtifactKind    `json:"best_tier,omitempty"`
}

func (s *Server) handleProgressiveStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	input, _ := s.jobInput(jobID)
	_, tier := s.d.Media.BestAvailable(jobID, input)
	writeJSON(w, http.StatusOK, progressiveStatusResponse{
		Artifacts: s.mediaStatus(jobID),
		BestTier:  tier,
	})
}

// handlePostProcess kicks off generation of the full artifact set in
// the background. Idempotent: ready and in-flight artifacts are
// skipped.
func (s *Server) handlePostProcess(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	input, err := s.jobInput(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	go func() {
		if err := s.d.Media.EnsureAll(context.Background(), jobID, input); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("post-process failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

// handleGeneratePreview requests one artifact, defaulting to the fast
// 360p proxy.
func (s *Server) handleGeneratePreview(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	kind := types.ArtifactPreview360p
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind = types.ArtifactKind(raw)
		if !kind.IsValid() {
			respondError(w, r, types.Ef(types.KindValidation, "api.generate_preview",
				"unknown artifact kind %q", raw))
			return
		}
	}
	input, err := s.jobInput(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	go func() {
		if err := s.d.Media.Ensure(context.Background(), jobID, input, kind); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).
				Str("artifact", kind.String()).Msg("preview generation failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "kind": kind})
}

// defaultProbeTTL bounds cached probe results when no TTL is configured.
const defaultProbeTTL = 24 * time.Hour

func (s *Server) cacheTTL() time.Duration {
	if s.d.Config != nil && s.d.Config.Cache.TTL > 0 {
		return s.d.Config.Cache.TTL
	}
	return defaultProbeTTL
}
