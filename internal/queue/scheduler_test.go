// SPDX-License-Identifier: MIT

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/types"
)

// stubRunner lets tests decide when and how each run ends. A job may
// run more than once (preempted and auto-resumed), so the started
// channel is closed exactly once and runs counts every entry.
type stubRunner struct {
	mu      sync.Mutex
	started map[string]chan struct{} // closed when Run first begins
	once    map[string]*sync.Once
	finish  map[string]chan error // test sends the outcome
	runs    map[string]int
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		started: make(map[string]chan struct{}),
		once:    make(map[string]*sync.Once),
		finish:  make(map[string]chan error),
		runs:    make(map[string]int),
	}
}

func (r *stubRunner) channels(id string) (chan struct{}, chan error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.started[id]; !ok {
		r.started[id] = make(chan struct{})
		r.once[id] = &sync.Once{}
		r.finish[id] = make(chan error, 1)
	}
	return r.started[id], r.finish[id]
}

func (r *stubRunner) runCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func (r *stubRunner) Run(ctx context.Context, id string, ctl *Run) error {
	started, finish := r.channels(id)
	r.mu.Lock()
	r.runs[id]++
	once := r.once[id]
	r.mu.Unlock()
	once.Do(func() { close(started) })
	for {
		select {
		case <-ctx.Done():
			return types.E(types.KindCancelled, "stub.run", ctx.Err())
		case err := <-finish:
			return err
		case <-time.After(10 * time.Millisecond):
			if ctl.PauseRequested() {
				return ErrPaused
			}
		}
	}
}

func (r *stubRunner) waitStarted(t *testing.T, id string) {
	t.Helper()
	started, _ := r.channels(id)
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("job %s never started", id)
	}
}

func (r *stubRunner) complete(id string, err error) {
	_, finish := r.channels(id)
	finish <- err
}

func newTestScheduler(t *testing.T) (*Scheduler, *stubRunner, *storage.Root) {
	t.Helper()
	root := storage.NewRoot(t.TempDir())
	require.NoError(t, root.Ensure())

	b := bus.New()
	t.Cleanup(b.Close)

	runner := newStubRunner()
	s := New(context.Background(), root, b, runner, config.QueueConfig{DefaultPriorityMode: types.PriorityGentle}, nil)
	return s, runner, root
}

func createJob(t *testing.T, s *Scheduler) string {
	t.Helper()
	job, err := s.Create("/media/input.mkv", types.EngineSettings{Engine: "primary", Model: "large-v3"})
	require.NoError(t, err)
	return job.ID
}

func waitStatus(t *testing.T, s *Scheduler, id string, want types.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := s.Get(id)
		return err == nil && job.Status == want
	}, 3*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
}

func TestCreateEnqueueFinish(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	id := createJob(t, s)

	pos, err := s.Enqueue(id, nil)
	require.NoError(t, err)
	assert.Zero(t, pos, "immediately promoted job leaves the queue")

	runner.waitStarted(t, id)
	waitStatus(t, s, id, types.JobStatusProcessing)

	runner.complete(id, nil)
	waitStatus(t, s, id, types.JobStatusFinished)

	job, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 100.0, job.Progress)
	assert.Equal(t, types.JobPhaseComplete, job.Phase)
	require.NotNil(t, job.Times.Completed)
}

func TestSingleRunningInvariant(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	a := createJob(t, s)
	b := createJob(t, s)

	_, err := s.Enqueue(a, nil)
	require.NoError(t, err)
	pos, err := s.Enqueue(b, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "second job waits in the queue")

	runner.waitStarted(t, a)
	snap := s.Snapshot()
	assert.Equal(t, a, snap.Active)
	assert.Equal(t, []string{b}, snap.Queue)

	runner.complete(a, nil)
	runner.waitStarted(t, b)
	waitStatus(t, s, b, types.JobStatusProcessing)
	runner.complete(b, nil)
	waitStatus(t, s, b, types.JobStatusFinished)
}

func TestPauseQueuedJob(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	a := createJob(t, s)
	b := createJob(t, s)
	_, err := s.Enqueue(a, nil)
	require.NoError(t, err)
	_, err = s.Enqueue(b, nil)
	require.NoError(t, err)
	runner.waitStarted(t, a)

	require.NoError(t, s.Pause(b))
	waitStatus(t, s, b, types.JobStatusPaused)
	assert.Empty(t, s.Snapshot().Queue)

	// Resume puts it back at the tail.
	require.NoError(t, s.Resume(b))
	waitStatus(t, s, b, types.JobStatusQueued)
	runner.complete(a, nil)
	runner.waitStarted(t, b)
	runner.complete(b, nil)
	waitStatus(t, s, b, types.JobStatusFinished)
}

func TestPauseRunningJobIsCooperative(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	id := createJob(t, s)
	_, err := s.Enqueue(id, nil)
	require.NoError(t, err)
	runner.waitStarted(t, id)

	require.NoError(t, s.Pause(id))
	waitStatus(t, s, id, types.JobStatusPaused)

	// Idempotent.
	require.NoError(t, s.Pause(id))
}

func TestCancelRunningJob(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	id := createJob(t, s)
	_, err := s.Enqueue(id, nil)
	require.NoError(t, err)
	runner.waitStarted(t, id)

	require.NoError(t, s.Cancel(id, false))
	waitStatus(t, s, id, types.JobStatusCanceled)

	// Cancelling a terminal job is a no-op.
	require.NoError(t, s.Cancel(id, false))
}

func TestForcePrioritizePreemptsAndAutoResumes(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	a := createJob(t, s)
	b := createJob(t, s)
	_, err := s.Enqueue(a, nil)
	require.NoError(t, err)
	_, err = s.Enqueue(b, nil)
	require.NoError(t, err)
	runner.waitStarted(t, a)

	require.NoError(t, s.Prioritize(b, types.PriorityForce))

	// A pauses cooperatively, B is promoted.
	waitStatus(t, s, a, types.JobStatusPaused)
	runner.waitStarted(t, b)
	waitStatus(t, s, b, types.JobStatusProcessing)

	jobA, err := s.Get(a)
	require.NoError(t, err)
	assert.Equal(t, b, jobA.InterruptedBy)
	assert.Equal(t, map[string]string{a: b}, s.InterruptedBy())

	// When B terminates, A auto-resumes to the queue head and runs.
	runner.complete(b, nil)
	waitStatus(t, s, a, types.JobStatusProcessing)

	jobA, err = s.Get(a)
	require.NoError(t, err)
	assert.Empty(t, jobA.InterruptedBy, "preemption link cleared after resumption")
	assert.Empty(t, s.InterruptedBy())

	runner.complete(a, nil)
	waitStatus(t, s, a, types.JobStatusFinished)
	assert.Equal(t, 2, runner.runCount(a), "preempted job runs once before and once after")
}

func TestGentlePrioritizeDoesNotPreempt(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	a := createJob(t, s)
	b := createJob(t, s)
	c := createJob(t, s)
	_, err := s.Enqueue(a, nil)
	require.NoError(t, err)
	_, err = s.Enqueue(b, nil)
	require.NoError(t, err)
	_, err = s.Enqueue(c, nil)
	require.NoError(t, err)
	runner.waitStarted(t, a)

	require.NoError(t, s.Prioritize(c, types.PriorityGentle))
	assert.Equal(t, []string{c, b}, s.Snapshot().Queue)
	waitStatus(t, s, a, types.JobStatusProcessing)

	runner.complete(a, nil)
	runner.waitStarted(t, c)
	runner.complete(c, nil)
	runner.waitStarted(t, b)
	runner.complete(b, nil)
}

func TestReorder_RejectsNonPermutation(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	a := createJob(t, s)
	x := createJob(t, s)
	y := createJob(t, s)
	z := createJob(t, s)
	for _, id := range []string{a, x, y, z} {
		_, err := s.Enqueue(id, nil)
		require.NoError(t, err)
	}
	runner.waitStarted(t, a)
	require.Equal(t, []string{x, y, z}, s.Snapshot().Queue)

	err := s.Reorder([]string{x, y}) // missing z
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
	assert.Equal(t, []string{x, y, z}, s.Snapshot().Queue, "rejected reorder leaves queue untouched")

	require.NoError(t, s.Reorder([]string{z, x, y}))
	assert.Equal(t, []string{z, x, y}, s.Snapshot().Queue)

	runner.complete(a, nil)
	runner.waitStarted(t, z)
	runner.complete(z, nil)
	runner.waitStarted(t, x)
	runner.complete(x, nil)
	runner.waitStarted(t, y)
	runner.complete(y, nil)
}

func TestFailedRunRecordsError(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	id := createJob(t, s)
	_, err := s.Enqueue(id, nil)
	require.NoError(t, err)
	runner.waitStarted(t, id)

	runner.complete(id, types.Ef(types.KindExternalTool, "stub", "recognizer exploded"))
	waitStatus(t, s, id, types.JobStatusFailed)

	job, err := s.Get(id)
	require.NoError(t, err)
	assert.Contains(t, job.LastError, "recognizer exploded")
}

func TestQueueStatePersistence(t *testing.T) {
	s, runner, root := newTestScheduler(t)
	a := createJob(t, s)
	b := createJob(t, s)
	_, err := s.Enqueue(a, nil)
	require.NoError(t, err)
	_, err = s.Enqueue(b, nil)
	require.NoError(t, err)
	runner.waitStarted(t, a)

	state, err := root.LoadQueueState()
	require.NoError(t, err)
	require.NotNil(t, state.Running)
	assert.Equal(t, a, *state.Running)
	assert.Equal(t, []string{b}, state.Queue)
}

func TestRestoreEntersPaused(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	job := &types.Job{
		ID:        "restored-1",
		InputPath: "/media/x.mkv",
		Filename:  "x.mkv",
		Status:    types.JobStatusProcessing, // crashed mid-run
		Phase:     types.JobPhaseTranscribe,
		Times:     types.JobTimes{Created: time.Now().UTC()},
	}
	require.NoError(t, s.Restore(job))

	got, err := s.Get("restored-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPaused, got.Status)

	// Double registration is rejected.
	require.Error(t, s.Restore(job))
}

func TestDelete_RequiresTerminalStatus(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	id := createJob(t, s)
	_, err := s.Enqueue(id, nil)
	require.NoError(t, err)
	runner.waitStarted(t, id)

	err = s.Delete(id)
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	runner.complete(id, nil)
	waitStatus(t, s, id, types.JobStatusFinished)
	require.NoError(t, s.Delete(id))
	_, err = s.Get(id)
	require.Error(t, err)
}

func TestDrainWaitsForRunningJob(t *testing.T) {
	s, runner, _ := newTestScheduler(t)
	id := createJob(t, s)
	_, err := s.Enqueue(id, nil)
	require.NoError(t, err)
	runner.waitStarted(t, id)

	drained := make(chan error, 1)
	go func() { drained <- s.Drain(context.Background()) }()

	select {
	case <-drained:
		t.Fatal("drain must wait for the running job")
	case <-time.After(50 * time.Millisecond):
	}

	runner.complete(id, nil)
	select {
	case err := <-drained:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("drain did not finish")
	}
}

func TestEnqueue_UnknownJob(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_, err := s.Enqueue("ghost", nil)
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestResume_RequiresPaused(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	id := createJob(t, s)
	err := s.Resume(id)
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}
