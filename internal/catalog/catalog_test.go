// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/types"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func record(id string, status types.JobStatus) Record {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	return Record{
		ID:           id,
		SourcePath:   "/media/" + id + ".mkv",
		DisplayName:  id,
		Status:       status,
		Phase:        types.JobPhaseTranscribe,
		Progress:     0.5,
		SettingsJSON: "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUpsertAndGet(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	r := record("job-1", types.JobStatusProcessing)
	require.NoError(t, c.Upsert(ctx, r))

	got, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, types.JobStatusProcessing, got.Status)
	assert.Equal(t, types.JobPhaseTranscribe, got.Phase)
	assert.InDelta(t, 0.5, got.Progress, 1e-9)
	assert.Nil(t, got.CompletedAt)
}

func TestUpsert_ReplacesExistingRow(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	r := record("job-1", types.JobStatusProcessing)
	require.NoError(t, c.Upsert(ctx, r))

	done := time.Now().UTC().Truncate(time.Second)
	r.Status = types.JobStatusFinished
	r.Progress = 1
	r.CompletedAt = &done
	require.NoError(t, c.Upsert(ctx, r))

	got, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFinished, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
}

func TestGet_NotFound(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncomplete_FiltersTerminalStates(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, record("done", types.JobStatusFinished)))
	require.NoError(t, c.Upsert(ctx, record("gone", types.JobStatusCanceled)))
	require.NoError(t, c.Upsert(ctx, record("dead", types.JobStatusFailed)))
	require.NoError(t, c.Upsert(ctx, record("paused", types.JobStatusPaused)))
	require.NoError(t, c.Upsert(ctx, record("running", types.JobStatusProcessing)))

	out, err := c.Incomplete(ctx)
	require.NoError(t, err)

	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.ID
	}
	assert.ElementsMatch(t, []string{"paused", "running"}, ids)
}

func TestListAndDelete(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, record("a", types.JobStatusQueued)))
	require.NoError(t, c.Upsert(ctx, record("b", types.JobStatusQueued)))

	all, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, c.Delete(ctx, "a"))
	require.NoError(t, c.Delete(ctx, "a")) // idempotent

	all, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestOpen_Reopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Upsert(context.Background(), record("persist", types.JobStatusPaused)))
	require.NoError(t, c.Close())

	c2, err := Open(path)
	require.NoError(t, err)
	defer c2.Close()
	got, err := c2.Get(context.Background(), "persist")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPaused, got.Status)
}
