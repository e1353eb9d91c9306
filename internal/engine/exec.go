// SPDX-License-Identifier: MIT

// Package engine adapts the external recognition, alignment and
// vocal-separation tools behind narrow interfaces. Every adapter
// shells out to a CLI, parses its JSON output and maps failures
// onto the error taxonomy.
package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"os/exec"
	"strconv"
	"time"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/procgroup"
	"github.com/subwave-io/subwave/internal/types"
)

// killGrace is how long a cancelled tool gets between SIGTERM and SIGKILL.
const killGrace = 10 * time.Second

// runFunc executes one external tool and returns its stdout.
// Adapters take it injected so tests never fork.
type runFunc func(ctx context.Context, bin string, args []string) ([]byte, error)

// runTool is the production runFunc. The child runs in its own process
// group so cancellation reaps helper children too.
func runTool(ctx context.Context, bin string, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.Command(bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	procgroup.Set(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.ObserveToolRun(toolLabel(bin), "start_failed", time.Since(start))
		return nil, types.Ef(types.KindExternalTool, "engine.run", "start %s: %v", bin, err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		procgroup.Terminate(cmd, waitCh, killGrace)
		metrics.ObserveToolRun(toolLabel(bin), "cancelled", time.Since(start))
		return nil, types.E(types.KindCancelled, "engine.run", ctx.Err())
	case err := <-waitCh:
		if err != nil {
			metrics.ObserveToolRun(toolLabel(bin), "failed", time.Since(start))
			logger := log.WithComponent("engine")
			logger.Error().
				Str("bin", bin).
				Str("stderr", tail(stderr.Bytes(), 2048)).
				Err(err).
				Msg("tool failed")
			return nil, types.Ef(types.KindExternalTool, "engine.run",
				"%s: %v: %s", bin, err, tail(stderr.Bytes(), 512))
		}
		metrics.ObserveToolRun(toolLabel(bin), "ok", time.Since(start))
		return stdout.Bytes(), nil
	}
}

func toolLabel(bin string) string {
	for i := len(bin) - 1; i >= 0; i-- {
		if bin[i] == '/' || bin[i] == '\\' {
			return bin[i+1:]
		}
	}
	return bin
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(bytes.TrimSpace(b))
}

// randomSuffix returns a short hex id for handoff filenames.
func randomSuffix() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b[:])
}
