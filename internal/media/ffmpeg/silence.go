// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/procgroup"
	"github.com/subwave-io/subwave/internal/types"
)

// Silence is one detected silence interval in seconds.
type Silence struct {
	Start float64
	End   float64
}

// SilenceScan runs the silencedetect filter over the extracted audio
// and returns the silence intervals in order.
func (r *Runner) SilenceScan(ctx context.Context, audioWAV string, noiseDB, minSilenceSec float64) ([]Silence, error) {
	args := append([]string{"-nostdin", "-hide_banner"},
		SilenceDetectArgs(audioWAV, noiseDB, minSilenceSec)...)

	cmd := exec.Command(r.bin, args...) // #nosec G204 -- args are built by this package
	procgroup.Set(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, types.E(types.KindExternalTool, "ffmpeg.silence_scan", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			metrics.ObserveToolRun("ffmpeg", "error", time.Since(start))
			return nil, types.E(types.KindExternalTool, "ffmpeg.silence_scan",
				fmt.Errorf("%w; stderr: %s", err, tailOf(stderr.String())))
		}
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, r.grace)
		metrics.ObserveToolRun("ffmpeg", "cancelled", time.Since(start))
		return nil, types.E(types.KindCancelled, "ffmpeg.silence_scan", ctx.Err())
	}

	metrics.ObserveToolRun("ffmpeg", "ok", time.Since(start))
	return ParseSilences(stderr.String()), nil
}

// ParseSilences extracts silencedetect intervals from ffmpeg stderr.
// The filter logs pairs of lines:
//
//	[silencedetect @ ...] silence_start: 1.2345
//	[silencedetect @ ...] silence_end: 3.5 | silence_duration: 2.2655
//
// A trailing silence_start without an end means silence runs to EOF;
// it is returned with End == -1 and the caller clamps it.
func ParseSilences(stderr string) []Silence {
	var (
		out     []Silence
		current *Silence
	)

	scanner := bufio.NewScanner(strings.NewReader(stderr))
	for scanner.Scan() {
		line := scanner.Text()

		if idx := strings.Index(line, "silence_start:"); idx >= 0 {
			v, err := parseLeadingFloat(line[idx+len("silence_start:"):])
			if err == nil {
				current = &Silence{Start: v, End: -1}
			}
			continue
		}

		if idx := strings.Index(line, "silence_end:"); idx >= 0 && current != nil {
			v, err := parseLeadingFloat(line[idx+len("silence_end:"):])
			if err == nil {
				current.End = v
				out = append(out, *current)
			}
			current = nil
		}
	}

	if current != nil {
		out = append(out, *current)
	}
	return out
}

func parseLeadingFloat(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(fields[0], 64)
}

func tailOf(s string) string {
	if len(s) > tailLimit {
		s = s[len(s)-tailLimit:]
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " | "))
}
