// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// Recorder adapts the catalog to the scheduler's mutation hook. Writes
// are best-effort: a failed row update is logged, never surfaced into
// the queue path.
type Recorder struct {
	cat     *Catalog
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRecorder wraps a catalog for use as the scheduler's recorder.
func NewRecorder(cat *Catalog) *Recorder {
	return &Recorder{
		cat:     cat,
		timeout: 5 * time.Second,
		logger:  log.WithComponent("catalog"),
	}
}

// Record upserts the job's durable row.
func (r *Recorder) Record(job types.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.cat.Upsert(ctx, recordFromJob(job)); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("catalog upsert failed")
	}
}

// Remove deletes the job's row after queue deletion.
func (r *Recorder) Remove(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.cat.Delete(ctx, jobID); err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("catalog delete failed")
	}
}

func recordFromJob(job types.Job) Record {
	settings, err := json.Marshal(job.Settings)
	if err != nil {
		settings = []byte("{}")
	}
	return Record{
		ID:           job.ID,
		SourcePath:   job.InputPath,
		DisplayName:  job.Filename,
		Status:       job.Status,
		Phase:        job.Phase,
		Progress:     job.Progress,
		Error:        job.LastError,
		SettingsJSON: string(settings),
		CreatedAt:    job.Times.Created,
		UpdatedAt:    time.Now().UTC(),
		CompletedAt:  job.Times.Completed,
	}
}
