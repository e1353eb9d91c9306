// SPDX-License-Identifier: MIT

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

const (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

func set(cmd *exec.Cmd) {
	// Process groups are a no-op on Windows in this context.
}

// signalGroup maps SIGKILL to Process.Kill; SIGTERM is a no-op because
// Windows has no reliable graceful termination via signals.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}
	return nil
}
