// SPDX-License-Identifier: MIT

// Package queue owns the job table and decides which job runs. One
// lock guards the ordered queue, the running id and the job map; at
// most one job is processing at any instant.
package queue

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/types"
)

// Recorder receives every job mutation for durable cataloging.
// Implementations must not call back into the scheduler.
type Recorder interface {
	Record(job types.Job)
	Remove(jobID string)
}

// Scheduler is the job queue and dispatcher.
type Scheduler struct {
	root     *storage.Root
	bus      *bus.Bus
	runner   Runner
	recorder Recorder
	cfg      config.QueueConfig
	logger   zerolog.Logger

	baseCtx context.Context

	mu            sync.Mutex
	jobs          map[string]*types.Job
	queue         []string
	running       string
	runs          map[string]*Run
	interruptedBy map[string]string // preempted id -> preempting id
	closed        bool

	// settled is signaled whenever a run finishes, for Drain.
	settled *sync.Cond
}

// New builds a scheduler. baseCtx bounds every run; cancelling it
// stops all pipelines.
func New(baseCtx context.Context, root *storage.Root, b *bus.Bus, runner Runner, cfg config.QueueConfig, rec Recorder) *Scheduler {
	s := &Scheduler{
		root:          root,
		bus:           b,
		runner:        runner,
		recorder:      rec,
		cfg:           cfg,
		logger:        log.WithComponent("queue"),
		baseCtx:       baseCtx,
		jobs:          make(map[string]*types.Job),
		queue:         []string{},
		runs:          make(map[string]*Run),
		interruptedBy: map[string]string{},
	}
	s.settled = sync.NewCond(&s.mu)
	return s
}

// Create allocates a job for an input file. The job starts in status
// created and is not queued until Enqueue.
func (s *Scheduler) Create(inputPath string, settings types.EngineSettings) (*types.Job, error) {
	if inputPath == "" {
		return nil, types.Ef(types.KindValidation, "queue.create", "input path required")
	}
	job := &types.Job{
		ID:        uuid.NewString(),
		InputPath: inputPath,
		Filename:  filepath.Base(inputPath),
		Settings:  settings,
		Status:    types.JobStatusCreated,
		Phase:     types.JobPhasePending,
		Times:     types.JobTimes{Created: time.Now().UTC()},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.recordLocked(job)
	s.logger.Info().Str("job_id", job.ID).Str("input", job.Filename).Msg("job created")
	metrics.RecordQueueOp("create", "ok")
	return job.Clone(), nil
}

// Enqueue appends the job to the queue. Settings, when non-nil,
// replace the job's snapshot before the run starts.
func (s *Scheduler) Enqueue(id string, settings *types.EngineSettings) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobLocked(id)
	if err != nil {
		metrics.RecordQueueOp("enqueue", "rejected")
		return 0, err
	}
	if job.Status == types.JobStatusQueued || job.Status == types.JobStatusProcessing {
		// Idempotent: already on its way.
		metrics.RecordQueueOp("enqueue", "noop")
		return s.positionLocked(id), nil
	}
	if !job.Status.CanTransitionTo(types.JobStatusQueued) {
		metrics.RecordQueueOp("enqueue", "rejected")
		return 0, types.Ef(types.KindValidation, "queue.enqueue",
			"job %s cannot be queued from status %s", id, job.Status)
	}
	if settings != nil {
		job.Settings = *settings
	}

	s.queue = append(s.queue, id)
	s.setStatusLocked(job, types.JobStatusQueued, "queued")
	s.afterMutationLocked("enqueue")
	return s.positionLocked(id), nil
}

// Pause requests a cooperative pause: a running job checkpoints at
// the next boundary, a queued job is pulled from the queue
// immediately. Pausing an already paused job is a no-op.
func (s *Scheduler) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobLocked(id)
	if err != nil {
		metrics.RecordQueueOp("pause", "rejected")
		return err
	}
	switch job.Status {
	case types.JobStatusPaused:
		metrics.RecordQueueOp("pause", "noop")
		return nil
	case types.JobStatusProcessing:
		if run, ok := s.runs[id]; ok {
			run.requestPause()
		}
		metrics.RecordQueueOp("pause", "ok")
		// Status flips to paused when the runner settles.
		return nil
	case types.JobStatusQueued:
		s.removeFromQueueLocked(id)
		s.setStatusLocked(job, types.JobStatusPaused, "paused while queued")
		s.afterMutationLocked("pause")
		return nil
	default:
		metrics.RecordQueueOp("pause", "rejected")
		return types.Ef(types.KindValidation, "queue.pause",
			"job %s cannot be paused from status %s", id, job.Status)
	}
}

// Resume moves a paused job back to the queue tail.
func (s *Scheduler) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobLocked(id)
	if err != nil {
		metrics.RecordQueueOp("resume", "rejected")
		return err
	}
	if job.Status == types.JobStatusQueued || job.Status == types.JobStatusProcessing {
		metrics.RecordQueueOp("resume", "noop")
		return nil
	}
	if job.Status != types.JobStatusPaused {
		metrics.RecordQueueOp("resume", "rejected")
		return types.Ef(types.KindValidation, "queue.resume",
			"job %s cannot be resumed from status %s", id, job.Status)
	}

	job.InterruptedBy = ""
	delete(s.interruptedBy, id)
	s.queue = append(s.queue, id)
	s.setStatusLocked(job, types.JobStatusQueued, "resumed")
	s.bus.PublishSignal(id, types.SignalJobResumed, nil)
	s.afterMutationLocked("resume")
	return nil
}

// Cancel stops a job wherever it is. A running job is cancelled
// cooperatively; settled state and optional data deletion follow when
// the runner returns. Cancelling a terminal job is a no-op.
func (s *Scheduler) Cancel(id string, deleteData bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobLocked(id)
	if err != nil {
		metrics.RecordQueueOp("cancel", "rejected")
		return err
	}
	if job.Status.IsTerminal() {
		metrics.RecordQueueOp("cancel", "noop")
		return nil
	}

	if job.Status == types.JobStatusProcessing {
		if run, ok := s.runs[id]; ok {
			run.deleteData.Store(deleteData)
			run.requestCancel()
		}
		metrics.RecordQueueOp("cancel", "ok")
		return nil
	}

	s.removeFromQueueLocked(id)
	delete(s.interruptedBy, id)
	s.setStatusLocked(job, types.JobStatusCanceled, "canceled")
	s.bus.PublishSignal(id, types.SignalJobCanceled, nil)
	if deleteData {
		s.purgeLocked(id)
	}
	s.afterMutationLocked("cancel")
	return nil
}

// Prioritize moves a queued job to the front. Mode force additionally
// preempts the running job: it is paused with a checkpoint and
// automatically resumed to the queue head once the prioritized job
// terminates.
func (s *Scheduler) Prioritize(id string, mode types.PriorityMode) error {
	if mode == "" {
		mode = s.cfg.DefaultPriorityMode
	}
	if !mode.IsValid() {
		return types.Ef(types.KindValidation, "queue.prioritize", "invalid priority mode %q", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobLocked(id)
	if err != nil {
		metrics.RecordQueueOp("prioritize", "rejected")
		return err
	}
	if job.Status == types.JobStatusProcessing {
		metrics.RecordQueueOp("prioritize", "noop")
		return nil
	}
	if job.Status != types.JobStatusQueued {
		metrics.RecordQueueOp("prioritize", "rejected")
		return types.Ef(types.KindValidation, "queue.prioritize",
			"job %s is not queued (status %s)", id, job.Status)
	}

	s.removeFromQueueLocked(id)
	s.queue = append([]string{id}, s.queue...)

	if mode == types.PriorityForce && s.running != "" {
		victim := s.running
		if run, ok := s.runs[victim]; ok {
			run.requestPause()
		}
		s.interruptedBy[victim] = id
		if vj, ok := s.jobs[victim]; ok {
			vj.InterruptedBy = id
		}
		metrics.RecordPreemption()
		s.logger.Info().Str("job_id", victim).Str("by", id).Msg("running job preempted")
	}

	s.afterMutationLocked("prioritize")
	return nil
}

// Reorder replaces the queue order. The ids must be an exact
// permutation of the currently queued set.
func (s *Scheduler) Reorder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := append([]string(nil), s.queue...)
	proposed := append([]string(nil), ids...)
	slices.Sort(current)
	slices.Sort(proposed)
	if !slices.Equal(current, proposed) {
		metrics.RecordQueueOp("reorder", "rejected")
		return types.Ef(types.KindValidation, "queue.reorder",
			"ids are not a permutation of the current queue")
	}

	s.queue = append([]string{}, ids...)
	s.afterMutationLocked("reorder")
	return nil
}

// Delete removes a terminal job's record and data from the daemon.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobLocked(id)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return types.Ef(types.KindValidation, "queue.delete",
			"job %s is still %s, cancel it first", id, job.Status)
	}
	delete(s.jobs, id)
	delete(s.interruptedBy, id)
	s.purgeLocked(id)
	if s.recorder != nil {
		s.recorder.Remove(id)
	}
	s.afterMutationLocked("delete")
	return nil
}

// Get returns a copy of the job.
func (s *Scheduler) Get(id string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.jobLocked(id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Jobs returns copies of all known jobs.
func (s *Scheduler) Jobs() []*types.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	slices.SortFunc(out, func(a, b *types.Job) int {
		return a.Times.Created.Compare(b.Times.Created)
	})
	return out
}

// Incomplete returns jobs with pending or suspended work.
func (s *Scheduler) Incomplete() []*types.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Job
	for _, j := range s.jobs {
		if j.Status.IsIncomplete() {
			out = append(out, j.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *types.Job) int {
		return a.Times.Created.Compare(b.Times.Created)
	})
	return out
}

// Snapshot returns the current queue view for queue-status and the
// global initial_state.
func (s *Scheduler) Snapshot() bus.QueueUpdatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// InterruptedBy returns the preemption links for queue-status.
func (s *Scheduler) InterruptedBy() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.interruptedBy))
	for k, v := range s.interruptedBy {
		out[k] = v
	}
	return out
}

// Update applies a mutation to a job under the queue lock. The
// pipeline runner uses it to push phase, progress and counters.
func (s *Scheduler) Update(id string, fn func(*types.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
		s.recordLocked(job)
	}
}

// Restore re-registers a job from durable state (catalog row plus
// checkpoint) after a daemon restart. The job enters as paused so the
// user explicitly restarts it.
func (s *Scheduler) Restore(job *types.Job) error {
	if job == nil || job.ID == "" {
		return types.Ef(types.KindValidation, "queue.restore", "job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return types.Ef(types.KindValidation, "queue.restore", "job %s already registered", job.ID)
	}

	cp := job.Clone()
	cp.Status = types.JobStatusPaused
	cp.InterruptedBy = ""
	s.jobs[cp.ID] = cp
	s.recordLocked(cp)
	s.afterMutationLocked("restore")
	s.logger.Info().Str("job_id", cp.ID).Msg("job restored from durable state")
	return nil
}

// Drain waits until no job is running. Pending queued jobs stay
// queued; call after cancelling or pausing as policy dictates.
func (s *Scheduler) Drain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	for s.running != "" {
		if err := ctx.Err(); err != nil {
			return types.E(types.KindCancelled, "queue.drain", err)
		}
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.settled.Broadcast()
				s.mu.Unlock()
			case <-done:
			}
		}()
		s.settled.Wait()
		close(done)
	}
	return nil
}

// ----- internals, all -Locked methods require s.mu -----

func (s *Scheduler) jobLocked(id string) (*types.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, types.Ef(types.KindValidation, "queue.lookup", "unknown job %q", id)
	}
	return job, nil
}

func (s *Scheduler) positionLocked(id string) int {
	for i, qid := range s.queue {
		if qid == id {
			return i + 1
		}
	}
	return 0
}

func (s *Scheduler) removeFromQueueLocked(id string) {
	for i, qid := range s.queue {
		if qid == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) snapshotLocked() bus.QueueUpdatePayload {
	paused := []string{}
	for _, j := range s.jobs {
		if j.Status == types.JobStatusPaused {
			paused = append(paused, j.ID)
		}
	}
	slices.Sort(paused)
	return bus.QueueUpdatePayload{
		Queue:  append([]string{}, s.queue...),
		Active: s.running,
		Paused: paused,
	}
}

func (s *Scheduler) setStatusLocked(job *types.Job, status types.JobStatus, message string) {
	now := time.Now().UTC()
	job.Status = status
	job.Message = message
	switch status {
	case types.JobStatusProcessing:
		job.Times.Started = &now
	case types.JobStatusPaused:
		job.Times.Paused = &now
	case types.JobStatusFailed:
		job.Times.Failed = &now
	case types.JobStatusFinished:
		job.Times.Completed = &now
	}
	metrics.RecordJobTransition(status.String())
	s.recordLocked(job)
	s.bus.PublishJobStatus(bus.JobStatusPayload{
		ID:      job.ID,
		Status:  status,
		Phase:   job.Phase,
		Message: message,
	})
	s.refreshGaugesLocked()
}

func (s *Scheduler) recordLocked(job *types.Job) {
	if s.recorder != nil {
		s.recorder.Record(*job)
	}
}

func (s *Scheduler) refreshGaugesLocked() {
	counts := map[types.JobStatus]int{}
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	for _, st := range []types.JobStatus{
		types.JobStatusCreated, types.JobStatusQueued, types.JobStatusProcessing,
		types.JobStatusPaused, types.JobStatusFinished, types.JobStatusFailed,
		types.JobStatusCanceled,
	} {
		metrics.JobsByStatus.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	metrics.QueueDepth.Set(float64(len(s.queue)))
}

// afterMutationLocked persists queue state, publishes queue_update
// and re-evaluates promotion. Runs after every externally visible
// queue operation.
func (s *Scheduler) afterMutationLocked(op string) {
	s.persistLocked()
	s.bus.PublishQueueUpdate(s.snapshotLocked())
	s.refreshGaugesLocked()
	metrics.RecordQueueOp(op, "ok")
	s.promoteLocked()
}

func (s *Scheduler) persistLocked() {
	state := storage.QueueState{
		Queue:         append([]string{}, s.queue...),
		Paused:        []string{},
		InterruptedBy: map[string]string{},
	}
	if s.running != "" {
		r := s.running
		state.Running = &r
	}
	for _, j := range s.jobs {
		if j.Status == types.JobStatusPaused {
			state.Paused = append(state.Paused, j.ID)
		}
	}
	slices.Sort(state.Paused)
	for k, v := range s.interruptedBy {
		state.InterruptedBy[k] = v
	}
	if err := s.root.SaveQueueState(state); err != nil {
		s.logger.Error().Err(err).Msg("queue state persist failed")
	}
}

func (s *Scheduler) promoteLocked() {
	if s.closed || s.running != "" || len(s.queue) == 0 {
		return
	}
	id := s.queue[0]
	s.queue = s.queue[1:]

	job, ok := s.jobs[id]
	if !ok {
		s.logger.Error().Str("job_id", id).Msg("queued id without job record, dropping")
		s.promoteLocked()
		return
	}

	run := newRun(s.baseCtx)
	s.runs[id] = run
	s.running = id
	s.setStatusLocked(job, types.JobStatusProcessing, "processing")
	s.persistLocked()
	s.bus.PublishQueueUpdate(s.snapshotLocked())

	go s.execute(id, run)
}

func (s *Scheduler) execute(id string, run *Run) {
	err := s.runner.Run(run.ctx, id, run)
	s.settle(id, run, err)
}

// settle maps the runner's outcome onto the job's terminal status,
// clears the running slot, honors preemption links and promotes the
// next job.
func (s *Scheduler) settle(id string, run *Run, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	if s.running == id {
		s.running = ""
	}

	job, ok := s.jobs[id]
	if ok {
		switch {
		case err == nil:
			job.Progress = 100.0
			job.Phase = types.JobPhaseComplete
			s.setStatusLocked(job, types.JobStatusFinished, "finished")
			s.bus.PublishSignal(id, types.SignalJobComplete, nil)
		case errors.Is(err, ErrPaused):
			s.setStatusLocked(job, types.JobStatusPaused, "paused")
			s.bus.PublishSignal(id, types.SignalJobPaused, nil)
		case types.IsKind(err, types.KindCancelled) && run.PauseRequested():
			s.setStatusLocked(job, types.JobStatusPaused, "paused")
			s.bus.PublishSignal(id, types.SignalJobPaused, nil)
		case types.IsKind(err, types.KindCancelled):
			s.setStatusLocked(job, types.JobStatusCanceled, "canceled")
			s.bus.PublishSignal(id, types.SignalJobCanceled, nil)
			if run.deleteData.Load() {
				s.purgeLocked(id)
			}
		default:
			job.LastError = err.Error()
			s.setStatusLocked(job, types.JobStatusFailed, err.Error())
			s.bus.PublishSignal(id, types.SignalJobFailed, map[string]string{
				"kind":  types.KindOf(err).String(),
				"error": err.Error(),
			})
			s.logger.Error().Err(err).Str("job_id", id).Msg("job failed")
		}
	}

	// A job preempted for this one resumes to the queue head.
	for victim, by := range s.interruptedBy {
		if by != id {
			continue
		}
		delete(s.interruptedBy, victim)
		if vj, ok := s.jobs[victim]; ok && vj.Status == types.JobStatusPaused {
			vj.InterruptedBy = ""
			s.queue = append([]string{victim}, s.queue...)
			s.setStatusLocked(vj, types.JobStatusQueued, "auto-resumed after preemption")
			s.bus.PublishSignal(victim, types.SignalJobResumed, map[string]string{"after": id})
		}
	}

	s.persistLocked()
	s.bus.PublishQueueUpdate(s.snapshotLocked())
	s.refreshGaugesLocked()
	s.settled.Broadcast()
	s.promoteLocked()
}

func (s *Scheduler) purgeLocked(id string) {
	if err := s.root.PurgeJob(id); err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("job data purge failed")
	}
}
