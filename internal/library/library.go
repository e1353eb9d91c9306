// SPDX-License-Identifier: MIT

// Package library indexes the configured input directory so the UI
// can offer local media files for job creation. The index lives in
// memory; a filesystem watcher keeps it current between full scans.
package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// mediaExts are the container formats accepted as job input.
var mediaExts = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".ts":   true,
	".m4v":  true,
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
}

// IsMediaExt reports whether ext (with leading dot, any case) is an
// accepted input container.
func IsMediaExt(ext string) bool {
	return mediaExts[strings.ToLower(ext)]
}

// Entry is one indexed media file.
type Entry struct {
	// Name is the path relative to the library root, forward slashes.
	Name string `json:"name"`

	// Path is the absolute filesystem path.
	Path string `json:"path"`

	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Library maintains the media index of one root directory.
type Library struct {
	root string

	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates a library over root. An empty root yields a permanently
// empty library.
func New(root string) *Library {
	return &Library{root: root, entries: make(map[string]Entry)}
}

// Root returns the library root directory.
func (l *Library) Root() string { return l.root }

// Scan rebuilds the index with a full directory walk. Unreadable
// subtrees are skipped, not fatal.
func (l *Library) Scan(ctx context.Context) error {
	if l.root == "" {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(l.root)
	if err != nil {
		return types.E(types.KindIO, "library.scan", err)
	}

	logger := log.WithComponent("library")
	fresh := make(map[string]Entry)
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Hidden directories hold caches and trash, not media.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if e, ok := l.entryFor(resolved, path, d); ok {
			fresh[e.Name] = e
		}
		return nil
	})
	if err != nil {
		return types.E(types.KindIO, "library.scan", err)
	}

	l.mu.Lock()
	l.entries = fresh
	l.mu.Unlock()
	logger.Info().Int("files", len(fresh)).Str("root", l.root).Msg("library scanned")
	return nil
}

func (l *Library) entryFor(root, path string, d fs.DirEntry) (Entry, bool) {
	if !mediaExts[strings.ToLower(filepath.Ext(path))] {
		return Entry{}, false
	}
	info, err := d.Info()
	if err != nil {
		return Entry{}, false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Entry{}, false
	}
	return Entry{
		Name:       filepath.ToSlash(rel),
		Path:       path,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}, true
}

// Watch keeps the index current until ctx is cancelled. New
// subdirectories are added to the watch as they appear. Watch
// performs an initial Scan itself.
func (l *Library) Watch(ctx context.Context) error {
	if l.root == "" {
		<-ctx.Done()
		return nil
	}
	if err := l.Scan(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return types.E(types.KindIO, "library.watch", err)
	}
	defer watcher.Close()

	if err := l.watchTree(watcher); err != nil {
		return err
	}

	logger := log.WithComponent("library")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			l.handleEvent(watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (l *Library) watchTree(watcher *fsnotify.Watcher) error {
	resolved, err := filepath.EvalSymlinks(l.root)
	if err != nil {
		return types.E(types.KindIO, "library.watch", err)
	}
	logger := log.WithComponent("library")
	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") && path != resolved {
			return fs.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("cannot watch directory")
		}
		return nil
	})
}

func (l *Library) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Op.Has(fsnotify.Create) {
				_ = watcher.Add(ev.Name)
			}
			return
		}
		l.indexFile(ev.Name, info)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		l.dropPath(ev.Name)
	}
}

func (l *Library) indexFile(path string, info os.FileInfo) {
	if !mediaExts[strings.ToLower(filepath.Ext(path))] {
		return
	}
	resolved, err := filepath.EvalSymlinks(l.root)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(resolved, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	e := Entry{
		Name:       filepath.ToSlash(rel),
		Path:       path,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}
	l.mu.Lock()
	l.entries[e.Name] = e
	l.mu.Unlock()
}

func (l *Library) dropPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, e := range l.entries {
		if e.Path == path || strings.HasPrefix(e.Path, path+string(filepath.Separator)) {
			delete(l.entries, name)
		}
	}
}

// List snapshots the index sorted by name.
func (l *Library) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve maps a relative library name to its indexed entry. Only
// names produced by List resolve; path traversal cannot escape the
// root because lookups never touch the filesystem.
func (l *Library) Resolve(name string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[filepath.ToSlash(name)]
	return e, ok
}
