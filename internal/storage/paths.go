// SPDX-License-Identifier: MIT

// Package storage owns the on-disk layout of the persistence root:
// the global queue state file and one directory per job holding the
// source, derived audio, segment chunks, journal and media artifacts.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/subwave-io/subwave/internal/types"
)

// Well-known file names inside a job directory.
const (
	FileAudioWAV   = "audio.wav"
	FileCheckpoint = "checkpoint.json"
	FileAligned    = "aligned.json"
	FileOutputSRT  = "output.srt"
	FileProxy360   = "proxy_360p.mp4"
	FileProxy720   = "proxy_720p.mp4"
	FilePeaks      = "peaks.json"
	FileThumbs     = "thumbs.jpg"
	FileThumbIndex = "thumbs.json"

	queueStateFile = "queue_state.json"
	jobsDirName    = "jobs"
	segmentsDir    = "segments"
)

// Root is the persistence root. All path construction goes through it
// so no other component concatenates directories by hand.
type Root struct {
	base string
}

// NewRoot creates a Root for the given base directory. Call Ensure
// before first use.
func NewRoot(base string) *Root {
	return &Root{base: base}
}

// Base returns the root directory.
func (r *Root) Base() string {
	return r.base
}

// Ensure creates the root and jobs directories and verifies writability.
func (r *Root) Ensure() error {
	if err := os.MkdirAll(r.JobsDir(), 0o750); err != nil {
		return types.E(types.KindIO, "storage.ensure", err)
	}
	probe := filepath.Join(r.base, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return types.E(types.KindIO, "storage.ensure", fmt.Errorf("root not writable: %w", err))
	}
	_ = os.Remove(probe)
	return nil
}

// QueueStatePath returns the global queue state file path.
func (r *Root) QueueStatePath() string {
	return filepath.Join(r.base, queueStateFile)
}

// JobsDir returns the directory containing all job directories.
func (r *Root) JobsDir() string {
	return filepath.Join(r.base, jobsDirName)
}

// JobDir returns the directory for one job.
func (r *Root) JobDir(jobID string) string {
	return filepath.Join(r.JobsDir(), jobID)
}

// EnsureJobDir creates a job's directory tree including segments/.
func (r *Root) EnsureJobDir(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if err := os.MkdirAll(r.SegmentsDir(jobID), 0o750); err != nil {
		return types.E(types.KindIO, "storage.ensure_job", err)
	}
	return nil
}

// InputPath returns the uploaded source path, preserving the original extension.
func (r *Root) InputPath(jobID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	return filepath.Join(r.JobDir(jobID), "input."+ext)
}

// FindInput locates the stored source file of a job, whatever its extension.
func (r *Root) FindInput(jobID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(r.JobDir(jobID), "input.*"))
	if err != nil {
		return "", types.E(types.KindIO, "storage.find_input", err)
	}
	if len(matches) == 0 {
		return "", types.Ef(types.KindIO, "storage.find_input", "no input file for job %s", jobID)
	}
	return matches[0], nil
}

// AudioPath returns the extracted mono PCM audio path.
func (r *Root) AudioPath(jobID string) string {
	return filepath.Join(r.JobDir(jobID), FileAudioWAV)
}

// SegmentsDir returns the directory holding VAD chunks.
func (r *Root) SegmentsDir(jobID string) string {
	return filepath.Join(r.JobDir(jobID), segmentsDir)
}

// SegmentPath returns the chunk file for one segment index.
func (r *Root) SegmentPath(jobID string, index int) string {
	return filepath.Join(r.SegmentsDir(jobID), fmt.Sprintf("%d.wav", index))
}

// SeparatedSegmentPath returns the vocals-only variant of a chunk for a tier.
func (r *Root) SeparatedSegmentPath(jobID string, index int, tier types.SeparationTier) string {
	return filepath.Join(r.SegmentsDir(jobID), fmt.Sprintf("%d.%s.wav", index, tier))
}

// CheckpointPath returns the durable journal path.
func (r *Root) CheckpointPath(jobID string) string {
	return filepath.Join(r.JobDir(jobID), FileCheckpoint)
}

// AlignedPath returns the aligned timestamps artifact path.
func (r *Root) AlignedPath(jobID string) string {
	return filepath.Join(r.JobDir(jobID), FileAligned)
}

// OutputPath returns the final subtitle path.
func (r *Root) OutputPath(jobID string) string {
	return filepath.Join(r.JobDir(jobID), FileOutputSRT)
}

// ArtifactPath maps an artifact kind to its file path.
func (r *Root) ArtifactPath(jobID string, kind types.ArtifactKind) string {
	switch kind {
	case types.ArtifactAudioWAV:
		return r.AudioPath(jobID)
	case types.ArtifactPeaks:
		return filepath.Join(r.JobDir(jobID), FilePeaks)
	case types.ArtifactPreview360p:
		return filepath.Join(r.JobDir(jobID), FileProxy360)
	case types.ArtifactProxy720p:
		return filepath.Join(r.JobDir(jobID), FileProxy720)
	case types.ArtifactThumbnails:
		return filepath.Join(r.JobDir(jobID), FileThumbs)
	default:
		return ""
	}
}

// ThumbIndexPath returns the sprite tile index path.
func (r *Root) ThumbIndexPath(jobID string) string {
	return filepath.Join(r.JobDir(jobID), FileThumbIndex)
}

// PurgeJob removes a job's directory and everything in it.
func (r *Root) PurgeJob(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if err := os.RemoveAll(r.JobDir(jobID)); err != nil {
		return types.E(types.KindIO, "storage.purge", err)
	}
	return nil
}

// validateJobID rejects ids that could escape the jobs directory.
func validateJobID(jobID string) error {
	if jobID == "" {
		return types.Ef(types.KindValidation, "storage.job_id", "empty job id")
	}
	if strings.ContainsAny(jobID, "/\\") || strings.Contains(jobID, "..") {
		return types.Ef(types.KindValidation, "storage.job_id", "illegal job id %q", jobID)
	}
	return nil
}
