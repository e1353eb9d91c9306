// SPDX-License-Identifier: MIT

package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestScan_IndexesMediaFilesOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "movie.mkv"))
	writeFile(t, filepath.Join(dir, "episodes", "s01e01.mp4"))
	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, ".cache", "hidden.mkv"))

	l := New(dir)
	require.NoError(t, l.Scan(context.Background()))

	entries := l.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "episodes/s01e01.mp4", entries[0].Name)
	assert.Equal(t, "movie.mkv", entries[1].Name)
	assert.Positive(t, entries[1].SizeBytes)
}

func TestScan_EmptyRootIsNoop(t *testing.T) {
	l := New("")
	require.NoError(t, l.Scan(context.Background()))
	assert.Empty(t, l.List())
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "movie.mkv"))

	l := New(dir)
	require.NoError(t, l.Scan(context.Background()))

	e, ok := l.Resolve("movie.mkv")
	require.True(t, ok)
	assert.True(t, filepath.IsAbs(e.Path))

	_, ok = l.Resolve("../etc/passwd")
	assert.False(t, ok)
	_, ok = l.Resolve("absent.mkv")
	assert.False(t, ok)
}

func TestScan_ReplacesStaleIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.mkv")
	writeFile(t, path)

	l := New(dir)
	require.NoError(t, l.Scan(context.Background()))
	require.Len(t, l.List(), 1)

	require.NoError(t, os.Remove(path))
	writeFile(t, filepath.Join(dir, "new.mkv"))
	require.NoError(t, l.Scan(context.Background()))

	entries := l.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "new.mkv", entries[0].Name)
}

func TestWatch_PicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()

	// Give the watcher a moment to arm before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "incoming.mkv"))

	require.Eventually(t, func() bool {
		_, ok := l.Resolve("incoming.mkv")
		return ok
	}, 3*time.Second, 25*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatch_DropsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "victim.mkv")
	writeFile(t, path)

	l := New(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Watch(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := l.Resolve("victim.mkv")
		return ok
	}, 3*time.Second, 25*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, ok := l.Resolve("victim.mkv")
		return !ok
	}, 3*time.Second, 25*time.Millisecond)
}
