// SPDX-License-Identifier: MIT

// Package procgroup spawns external tools in their own process group
// and reaps the whole tree on cancellation: SIGTERM, grace, SIGKILL.
// Every subprocess the daemon starts goes through Set so that no
// ffmpeg or engine child survives its parent.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

var (
	// ErrKillFailed means the group did not die even after SIGKILL.
	ErrKillFailed = errors.New("procgroup: kill failed")
)

// Set configures the command to start in a new process group.
// Mandatory for Terminate to work as a group reaper.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate gracefully stops a started command's process group. It
// sends SIGTERM, waits for the wait channel up to grace, then sends
// SIGKILL and drains the channel. The returned error is the one from
// cmd.Wait. Safe to call with a nil command.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = signalGroup(cmd, sigTerm)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	_ = signalGroup(cmd, sigKill)
	return <-waitCh
}
