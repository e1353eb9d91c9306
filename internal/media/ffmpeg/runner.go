// SPDX-License-Identifier: MIT

// Package ffmpeg wraps the external transcoder: argument builders for
// every derived artifact, a supervised runner that parses -progress
// output and kills stalled processes, and the ffprobe prober.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/procgroup"
	"github.com/subwave-io/subwave/internal/types"
)

// Progress is one flushed -progress block.
type Progress struct {
	Frame     int
	OutTimeUS int64
	TotalSize int64
	Speed     string
}

// hasAdvanced reports whether p moved past prev in any dimension.
func (p Progress) hasAdvanced(prev Progress) bool {
	return p.OutTimeUS > prev.OutTimeUS || p.TotalSize > prev.TotalSize || p.Frame > prev.Frame
}

// Runner executes ffmpeg with progress supervision. The zero value is
// not usable; construct with NewRunner.
type Runner struct {
	bin          string
	grace        time.Duration
	startupGrace time.Duration
	stallTimeout time.Duration
	logger       zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStallTimeout overrides how long ffmpeg may make no progress
// before it is killed.
func WithStallTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.stallTimeout = d
		}
	}
}

// WithKillGrace overrides the SIGTERM-to-SIGKILL grace on cancellation.
func WithKillGrace(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// NewRunner creates a Runner for the given ffmpeg binary.
func NewRunner(bin string, opts ...RunnerOption) *Runner {
	r := &Runner{
		bin:          bin,
		grace:        5 * time.Second,
		startupGrace: 30 * time.Second,
		stallTimeout: 5 * time.Minute,
		logger:       log.WithComponent("ffmpeg"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes ffmpeg with the given args. onProgress, when non-nil,
// receives every flushed progress block. On context cancellation the
// process group is terminated gracefully and ctx.Err is returned.
func (r *Runner) Run(ctx context.Context, args []string, onProgress func(Progress)) error {
	start := time.Now()
	err := r.run(ctx, args, onProgress)

	outcome := "ok"
	switch {
	case err == nil:
	case types.IsKind(err, types.KindCancelled):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	metrics.ObserveToolRun("ffmpeg", outcome, time.Since(start))
	return err
}

func (r *Runner) run(ctx context.Context, args []string, onProgress func(Progress)) error {
	fullArgs := append([]string{"-nostdin", "-hide_banner", "-progress", "pipe:1"}, args...)
	cmd := exec.Command(r.bin, fullArgs...) // #nosec G204 -- args are built by this package
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return types.E(types.KindExternalTool, "ffmpeg.run", err)
	}
	var stderrTail tailBuffer
	cmd.Stderr = &stderrTail

	if err := cmd.Start(); err != nil {
		return types.E(types.KindExternalTool, "ffmpeg.run", fmt.Errorf("start %s: %w", r.bin, err))
	}

	progressCh := make(chan Progress, 64)
	go func() {
		defer close(progressCh)
		parseProgress(stdout, progressCh)
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	if err := r.supervise(ctx, cmd, waitCh, progressCh, onProgress); err != nil {
		if types.IsKind(err, types.KindCancelled) {
			return err
		}
		return types.E(types.KindExternalTool, "ffmpeg.run",
			fmt.Errorf("%w; stderr: %s", err, stderrTail.Tail()))
	}
	return nil
}

// supervise multiplexes completion, cancellation, progress and the
// stall watchdog.
func (r *Runner) supervise(
	ctx context.Context,
	cmd *exec.Cmd,
	waitCh <-chan error,
	progressCh <-chan Progress,
	onProgress func(Progress),
) error {
	started := time.Now()
	lastProgressAt := started
	var last Progress

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-waitCh:
			// Drain the parser so its goroutine ends.
			for range progressCh {
			}
			return err

		case <-ctx.Done():
			_ = procgroup.Terminate(cmd, waitCh, r.grace)
			for range progressCh {
			}
			return types.E(types.KindCancelled, "ffmpeg.run", ctx.Err())

		case p, ok := <-progressCh:
			if !ok {
				progressCh = nil
				continue
			}
			if p.hasAdvanced(last) {
				last = p
				lastProgressAt = time.Now()
			}
			if onProgress != nil {
				onProgress(p)
			}

		case <-ticker.C:
			if time.Since(started) < r.startupGrace {
				continue
			}
			if time.Since(lastProgressAt) > r.stallTimeout {
				r.logger.Error().
					Dur("since_progress", time.Since(lastProgressAt)).
					Int64("last_out_time_us", last.OutTimeUS).
					Str("last_speed", last.Speed).
					Msg("ffmpeg stalled, killing process group")
				_ = procgroup.Terminate(cmd, waitCh, r.grace)
				for range progressCh {
				}
				return fmt.Errorf("ffmpeg stalled after %s", r.stallTimeout)
			}
		}
	}
}

// parseProgress reads key=value blocks from ffmpeg's -progress stream
// and flushes one Progress per "progress" key.
func parseProgress(r io.Reader, ch chan<- Progress) {
	scanner := bufio.NewScanner(r)
	var current Progress

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, val, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		switch key {
		case "frame":
			if v, err := strconv.Atoi(val); err == nil {
				current.Frame = v
			}
		case "out_time_us":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.OutTimeUS = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.TotalSize = v
			}
		case "speed":
			current.Speed = val
		case "progress":
			ch <- current
		}
	}
}

// tailBuffer keeps the last few KiB of stderr for error reporting.
type tailBuffer struct {
	buf bytes.Buffer
}

const tailLimit = 4 * 1024

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf.Write(p)
	if t.buf.Len() > 2*tailLimit {
		data := t.buf.Bytes()
		keep := append([]byte{}, data[len(data)-tailLimit:]...)
		t.buf.Reset()
		t.buf.Write(keep)
	}
	return len(p), nil
}

// Tail returns the retained stderr suffix as one trimmed line.
func (t *tailBuffer) Tail() string {
	s := t.buf.String()
	if len(s) > tailLimit {
		s = s[len(s)-tailLimit:]
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " | "))
}
