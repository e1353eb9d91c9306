// SPDX-License-Identifier: MIT

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/types"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	r := NewRoot(t.TempDir())
	require.NoError(t, r.Ensure())
	return r
}

func TestRoot_EnsureCreatesLayout(t *testing.T) {
	r := newTestRoot(t)

	info, err := os.Stat(r.JobsDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRoot_JobPaths(t *testing.T) {
	r := NewRoot("/data")

	assert.Equal(t, "/data/queue_state.json", r.QueueStatePath())
	assert.Equal(t, "/data/jobs/j1", r.JobDir("j1"))
	assert.Equal(t, "/data/jobs/j1/audio.wav", r.AudioPath("j1"))
	assert.Equal(t, "/data/jobs/j1/segments/4.wav", r.SegmentPath("j1", 4))
	assert.Equal(t, "/data/jobs/j1/segments/4.strong.wav", r.SeparatedSegmentPath("j1", 4, types.TierStrong))
	assert.Equal(t, "/data/jobs/j1/checkpoint.json", r.CheckpointPath("j1"))
	assert.Equal(t, "/data/jobs/j1/output.srt", r.OutputPath("j1"))
	assert.Equal(t, "/data/jobs/j1/proxy_360p.mp4", r.ArtifactPath("j1", types.ArtifactPreview360p))
	assert.Equal(t, "/data/jobs/j1/proxy_720p.mp4", r.ArtifactPath("j1", types.ArtifactProxy720p))
	assert.Equal(t, "/data/jobs/j1/peaks.json", r.ArtifactPath("j1", types.ArtifactPeaks))
}

func TestRoot_RejectsTraversalIDs(t *testing.T) {
	r := newTestRoot(t)

	for _, id := range []string{"", "../evil", "a/b", `a\b`, ".."} {
		err := r.EnsureJobDir(id)
		assert.Error(t, err, "id %q should be rejected", id)
		assert.Equal(t, types.KindValidation, types.KindOf(err))
	}
}

func TestRoot_FindInput(t *testing.T) {
	r := newTestRoot(t)
	require.NoError(t, r.EnsureJobDir("j1"))

	_, err := r.FindInput("j1")
	assert.Error(t, err)

	path := r.InputPath("j1", "mkv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	found, err := r.FindInput("j1")
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestWriteFileAtomic_NoPartialReads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first")))
	require.NoError(t, WriteFileAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// No temp files may linger after commit.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteJSONAtomic_IsByteStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v.json")
	value := map[string]any{"b": 2, "a": 1}

	require.NoError(t, WriteJSONAtomic(path, value))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, WriteJSONAtomic(path, value))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestReadJSON_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	var v map[string]any
	err := ReadJSON(filepath.Join(dir, "absent.json"), &v)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{truncated"), 0o600))
	err = ReadJSON(bad, &v)
	require.Error(t, err)
	assert.Equal(t, types.KindIO, types.KindOf(err))
}

func TestMoveAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("corrupt"), 0o600))

	aside, err := MoveAside(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(aside), "checkpoint.json.corrupt-"))

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	data, err := os.ReadFile(aside)
	require.NoError(t, err)
	assert.Equal(t, "corrupt", string(data))
}

func TestQueueState_RoundTrip(t *testing.T) {
	r := newTestRoot(t)

	// Missing file yields an empty state, not an error.
	state, err := r.LoadQueueState()
	require.NoError(t, err)
	assert.Empty(t, state.Queue)
	assert.Nil(t, state.Running)

	running := "job-b"
	state = QueueState{
		Queue:         []string{"job-a", "job-c"},
		Running:       &running,
		Paused:        []string{"job-d"},
		InterruptedBy: map[string]string{"job-d": "job-b"},
	}
	require.NoError(t, r.SaveQueueState(state))

	loaded, err := r.LoadQueueState()
	require.NoError(t, err)
	assert.Equal(t, state.Queue, loaded.Queue)
	require.NotNil(t, loaded.Running)
	assert.Equal(t, "job-b", *loaded.Running)
	assert.Equal(t, state.InterruptedBy, loaded.InterruptedBy)
}

func TestPurgeJob(t *testing.T) {
	r := newTestRoot(t)
	require.NoError(t, r.EnsureJobDir("j1"))
	require.NoError(t, os.WriteFile(r.AudioPath("j1"), []byte("pcm"), 0o600))

	require.NoError(t, r.PurgeJob("j1"))

	_, err := os.Stat(r.JobDir("j1"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
