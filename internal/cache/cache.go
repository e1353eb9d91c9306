// SPDX-License-Identifier: MIT

// Package cache stores expensive probe and analysis results keyed by
// file identity. A file that is rewritten in place changes size or
// mtime and misses the cache, forcing a fresh probe.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/log"
)

// Cache is a byte-value store with TTL support. Implementations must
// be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. Returns false if absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Delete removes a value.
	Delete(ctx context.Context, key string)

	// Clear removes all values.
	Clear(ctx context.Context)

	// Stats returns cache performance counters.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	CurrentSize int   `json:"current_size"`
}

// FileKey derives a cache key from a file's identity. Size and mtime
// participate so an in-place rewrite invalidates the entry.
func FileKey(prefix, path string, fi os.FileInfo) string {
	return fmt.Sprintf("%s:%s:%d:%d", prefix, path, fi.Size(), fi.ModTime().UnixNano())
}

// GetJSON fetches and unmarshals a typed value.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var zero T
	data, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.Delete(ctx, key)
		return zero, false
	}
	return v, true
}

// SetJSON marshals and stores a typed value. Marshal failures are
// dropped; a cache never fails the caller.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(ctx, key, data, ttl)
}

// New builds the configured backend. A Redis address selects the
// Redis cache; if the connection fails the daemon falls back to the
// in-memory cache rather than refusing to start.
func New(cfg config.CacheConfig) Cache {
	if cfg.RedisAddr != "" {
		logger := log.WithComponent("cache")
		c, err := NewRedis(cfg.RedisAddr)
		if err == nil {
			logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis probe cache")
			return c
		}
		logger.Warn().Err(err).
			Str("addr", cfg.RedisAddr).
			Msg("redis unavailable, falling back to memory cache")
	}
	return NewMemory(5 * time.Minute)
}

type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// memoryCache is the in-process implementation.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates an in-memory cache. Expired entries are swept in
// the background every cleanupInterval; zero disables the sweeper.
func NewMemory(cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.expired(time.Now()) {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiration: time.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	count := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// noOpCache disables caching entirely.
type noOpCache struct{}

// NewNoOp creates a cache that never stores anything.
func NewNoOp() Cache {
	return &noOpCache{}
}

func (noOpCache) Get(context.Context, string) ([]byte, bool)            { return nil, false }
func (noOpCache) Set(context.Context, string, []byte, time.Duration)    {}
func (noOpCache) Delete(context.Context, string)                        {}
func (noOpCache) Clear(context.Context)                                 {}
func (noOpCache) Stats() Stats                                          { return Stats{} }
func (noOpCache) Close() error                                          { return nil }
