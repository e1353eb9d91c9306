// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/subwave-io/subwave/internal/journal"
	"github.com/subwave-io/subwave/internal/library"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/types"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing;
// larger bodies spill to temp files.
const maxUploadMemory = 32 << 20

type uploadResponse struct {
	JobID         string `json:"job_id"`
	Filename      string `json:"filename"`
	QueuePosition int    `json:"queue_position"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, r, types.E(types.KindValidation, "api.upload", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, types.E(types.KindValidation, "api.upload", err))
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !library.IsMediaExt(ext) {
		respondError(w, r, types.Ef(types.KindValidation, "api.upload",
			"unsupported file type %q", ext))
		return
	}

	job, err := s.d.Queue.Create(header.Filename, s.defaultSettings())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.d.Root.EnsureJobDir(job.ID); err != nil {
		respondError(w, r, err)
		return
	}
	dest := s.d.Root.InputPath(job.ID, ext)
	if err := storeUpload(dest, file); err != nil {
		respondError(w, r, types.E(types.KindIO, "api.upload", err))
		return
	}
	s.d.Queue.Update(job.ID, func(j *types.Job) {
		j.InputPath = dest
		j.Filename = header.Filename
	})

	writeJSON(w, http.StatusOK, uploadResponse{
		JobID:    job.ID,
		Filename: header.Filename,
	})
}

func storeUpload(dest string, src io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}

type createJobRequest struct {
	Filename string                `json:"filename"`
	Settings *types.EngineSettings `json:"settings,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if s.d.Library == nil || s.d.Library.Root() == "" {
		respondError(w, r, types.Ef(types.KindValidation, "api.create_job",
			"no input directory configured"))
		return
	}
	entry, ok := s.d.Library.Resolve(req.Filename)
	if !ok {
		respondError(w, r, types.Ef(types.KindValidation, "api.create_job",
			"file %q not found in library", req.Filename))
		return
	}

	settings := s.defaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	job, err := s.d.Queue.Create(entry.Path, settings)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{JobID: job.ID, Filename: job.Filename})
}

type startRequest struct {
	JobID    string                `json:"job_id"`
	Settings *types.EngineSettings `json:"settings,omitempty"`

	// FreshRun discards an existing checkpoint whose model identity
	// the supplied settings would change.
	FreshRun bool `json:"fresh_run,omitempty"`
}

type startResponse struct {
	Started       bool `json:"started"`
	QueuePosition int  `json:"queue_position"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	// Checkpoint settings are authoritative: changing the model
	// identity under an existing checkpoint needs an explicit
	// fresh-run confirmation, which discards the partial state.
	if req.Settings != nil {
		if cp, err := s.d.Journal.Load(req.JobID); err == nil && !cp.CompatibleWith(*req.Settings) {
			if !req.FreshRun {
				respondError(w, r, types.Ef(types.KindValidation, "api.start",
					"settings change the model identity of an existing checkpoint; set fresh_run to discard it"))
				return
			}
			if err := s.d.Journal.Purge(req.JobID); err != nil {
				respondError(w, r, err)
				return
			}
		}
	}
	pos, err := s.d.Queue.Enqueue(req.JobID, req.Settings)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Started: true, QueuePosition: pos})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Queue.Pause(chi.URLParam(r, "jobID")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Queue.Resume(chi.URLParam(r, "jobID")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resumed": true})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	deleteData := false
	if raw := r.URL.Query().Get("delete_data"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, types.Ef(types.KindValidation, "api.cancel",
				"invalid delete_data %q", raw))
			return
		}
		deleteData = v
	}
	if err := s.d.Queue.Cancel(jobID, deleteData); err != nil {
		respondError(w, r, err)
		return
	}
	if deleteData {
		s.d.Media.Forget(jobID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": true})
}

func (s *Server) handlePrioritize(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	var mode types.PriorityMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		m, err := types.ParsePriorityMode(raw)
		if err != nil {
			respondError(w, r, types.E(types.KindValidation, "api.prioritize", err))
			return
		}
		mode = m
	}
	if err := s.d.Queue.Prioritize(jobID, mode); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"prioritized": true})
}

type reorderRequest struct {
	Queue []string `json:"queue"`
}

func (s *Server) handleReorderQueue(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.d.Queue.Reorder(req.Queue); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reordered": true})
}

type statusResponse struct {
	Job   *types.Job            `json:"job"`
	Media []mediaArtifactStatus `json:"media"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.d.Queue.Get(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Job:   job,
		Media: s.mediaStatus(jobID),
	})
}

type queueStatusResponse struct {
	Queue         []string          `json:"queue"`
	Running       string            `json:"running,omitempty"`
	Paused        []string          `json:"paused"`
	InterruptedBy map[string]string `json:"interrupted_by"`
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.d.Queue.Snapshot()
	writeJSON(w, http.StatusOK, queueStatusResponse{
		Queue:         snap.Queue,
		Running:       snap.Active,
		Paused:        snap.Paused,
		InterruptedBy: s.d.Queue.InterruptedBy(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.d.Queue.Get(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	path := s.d.Root.OutputPath(jobID)
	if _, err := os.Stat(path); err != nil {
		respondError(w, r, err)
		return
	}
	name := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename)) + ".srt"
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Type", "application/x-subrip")
	http.ServeFile(w, r, path)
}

func (s *Server) handleIncompleteJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.d.Queue.Incomplete()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

type checkResumeResponse struct {
	Resumable         bool           `json:"resumable"`
	Phase             types.JobPhase `json:"phase,omitempty"`
	ProcessedSegments int            `json:"processed_segments"`
	TotalSegments     int            `json:"total_segments"`
}

func (s *Server) handleCheckResume(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	cp, err := s.d.Journal.Load(jobID)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) || errors.Is(err, journal.ErrCorrupt) {
			writeJSON(w, http.StatusOK, checkResumeResponse{Resumable: false})
			return
		}
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResumeResponse{
		Resumable:         true,
		Phase:             cp.Phase,
		ProcessedSegments: len(cp.ProcessedIndices),
		TotalSegments:     cp.TotalSegments,
	})
}

func (s *Server) handleRestoreJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.d.Catalog == nil {
		respondError(w, r, types.Ef(types.KindValidation, "api.restore_job",
			"no job catalog configured"))
		return
	}
	rec, err := s.d.Catalog.Get(r.Context(), jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	job := &types.Job{
		ID:        rec.ID,
		InputPath: rec.SourcePath,
		Filename:  rec.DisplayName,
		Status:    rec.Status,
		Phase:     rec.Phase,
		Progress:  rec.Progress,
		Settings:  s.defaultSettings(),
		Times:     types.JobTimes{Created: rec.CreatedAt},
	}
	if rec.SettingsJSON != "" {
		if err := json.Unmarshal([]byte(rec.SettingsJSON), &job.Settings); err != nil {
			respondError(w, r, types.E(types.KindInternal, "api.restore_job", err))
			return
		}
	}
	// The checkpoint's settings snapshot is authoritative over the row.
	if cp, err := s.d.Journal.Load(jobID); err == nil {
		job.Settings = cp.OriginalSettings
		job.TotalSegments = cp.TotalSegments
		job.ProcessedSegments = len(cp.ProcessedIndices)
	}

	if err := s.d.Queue.Restore(job); err != nil {
		respondError(w, r, err)
		return
	}
	restored, err := s.d.Queue.Get(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": restored})
}

type transcriptionTextResponse struct {
	JobID    string           `json:"job_id"`
	Language string           `json:"language,omitempty"`
	Source   string           `json:"source"`
	Text     string           `json:"text"`
	Segments []types.Utterance `json:"segments,omitempty"`
}

// handleTranscriptionText serves the aligned result when present and
// falls back to the unaligned partial from the checkpoint. This data
// is pull-only; it is never pushed over SSE.
func (s *Server) handleTranscriptionText(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var aligned types.AlignedResult
	if err := storage.ReadJSON(s.d.Root.AlignedPath(jobID), &aligned); err == nil {
		writeJSON(w, http.StatusOK, transcriptionTextResponse{
			JobID:    jobID,
			Language: aligned.Language,
			Source:   "aligned",
			Text:     utteranceText(aligned.Segments),
			Segments: aligned.Segments,
		})
		return
	}

	cp, err := s.d.Journal.Load(jobID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	frags := append([]types.Fragment(nil), cp.UnalignedResults...)
	sort.Slice(frags, func(i, j int) bool {
		return frags[i].SegmentIndex < frags[j].SegmentIndex
	})
	var lang string
	var all []types.Utterance
	for _, f := range frags {
		if lang == "" {
			lang = f.Language
		}
		all = append(all, f.Segments...)
	}
	writeJSON(w, http.StatusOK, transcriptionTextResponse{
		JobID:    jobID,
		Language: lang,
		Source:   "checkpoint",
		Text:     utteranceText(all),
		Segments: all,
	})
}

func utteranceText(utts []types.Utterance) string {
	parts := make([]string, 0, len(utts))
	for _, u := range utts {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.d.Queue.Delete(jobID); err != nil {
		respondError(w, r, err)
		return
	}
	s.d.Media.Forget(jobID)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if s.d.Library == nil {
		writeJSON(w, http.StatusOK, map[string]any{"files": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": s.d.Library.List()})
}

func (s *Server) defaultSettings() types.EngineSettings {
	if s.d.Config != nil {
		return s.d.Config.DefaultSettings()
	}
	return types.EngineSettings{}
}
