// SPDX-License-Identifier: MIT

package queue

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrPaused is returned by a Runner that observed a cooperative pause
// request and checkpointed cleanly.
var ErrPaused = errors.New("run paused")

// Runner executes one job's pipeline from its current checkpoint to a
// terminal state. Implementations poll ctl at every segment and stage
// boundary.
type Runner interface {
	Run(ctx context.Context, jobID string, ctl *Run) error
}

// Run is the cooperative control handle the scheduler hands to the
// runner for one execution.
type Run struct {
	ctx    context.Context
	cancel context.CancelFunc

	pause      atomic.Bool
	deleteData atomic.Bool
}

func newRun(parent context.Context) *Run {
	ctx, cancel := context.WithCancel(parent)
	return &Run{ctx: ctx, cancel: cancel}
}

// Context is cancelled on job cancellation and daemon shutdown.
func (r *Run) Context() context.Context { return r.ctx }

// PauseRequested reports a pending cooperative pause. The runner
// reacts at the next checkpoint boundary by saving state and
// returning ErrPaused.
func (r *Run) PauseRequested() bool { return r.pause.Load() }

func (r *Run) requestPause()  { r.pause.Store(true) }
func (r *Run) requestCancel() { r.cancel() }
