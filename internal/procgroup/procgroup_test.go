// SPDX-License-Identifier: MIT

//go:build unix

package procgroup

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminate_NilCommand(t *testing.T) {
	assert.NoError(t, Terminate(nil, nil, time.Second))
}

func TestTerminate_ExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	assert.NoError(t, Terminate(cmd, waitCh, 2*time.Second))
}

func TestTerminate_KillsSleeper(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	err := Terminate(cmd, waitCh, 2*time.Second)
	// sleep dies on SIGTERM, so Wait reports a signal exit quickly.
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	// Trap SIGTERM so only SIGKILL can end the process.
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	err := Terminate(cmd, waitCh, 200*time.Millisecond)
	assert.Error(t, err)
}
