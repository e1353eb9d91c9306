// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/config"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemory(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("value1"), 5*time.Minute)

	val, ok := c.Get(ctx, "key1")
	require.True(t, ok)
	assert.Equal(t, []byte("value1"), val)

	_, ok = c.Get(ctx, "nonexistent")
	assert.False(t, ok)
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemory(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "shortlived", []byte("v"), 30*time.Millisecond)

	_, ok := c.Get(ctx, "shortlived")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get(ctx, "shortlived")
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	c := NewMemory(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)

	c.Delete(ctx, "a")
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	c.Clear(ctx)
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().CurrentSize)
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemory(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Get(ctx, "k")
	c.Get(ctx, "miss")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Sets)
	assert.Equal(t, 1, s.CurrentSize)
}

type probeLike struct {
	Duration float64 `json:"duration"`
	Format   string  `json:"format"`
}

func TestJSONRoundTrip(t *testing.T) {
	c := NewMemory(0)
	defer c.Close()
	ctx := context.Background()

	SetJSON(ctx, c, "probe:x", probeLike{Duration: 93.5, Format: "matroska"}, time.Minute)

	got, ok := GetJSON[probeLike](ctx, c, "probe:x")
	require.True(t, ok)
	assert.Equal(t, probeLike{Duration: 93.5, Format: "matroska"}, got)
}

func TestGetJSON_CorruptEntryIsMissAndDeleted(t *testing.T) {
	c := NewMemory(0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "bad", []byte("{invalid"), time.Minute)

	_, ok := GetJSON[probeLike](ctx, c, "bad")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "bad")
	assert.False(t, ok, "corrupt entry must be evicted")
}

func TestFileKey_ChangesWithIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(path, []byte("aaaa"), 0o644))

	fi1, err := os.Stat(path)
	require.NoError(t, err)
	key1 := FileKey("probe", path, fi1)

	require.NoError(t, os.WriteFile(path, []byte("aaaabbbb"), 0o644))
	fi2, err := os.Stat(path)
	require.NoError(t, err)
	key2 := FileKey("probe", path, fi2)

	assert.NotEqual(t, key1, key2)
}

func TestNew_WithoutRedisUsesMemory(t *testing.T) {
	c := New(config.CacheConfig{TTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	val, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOp()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}
