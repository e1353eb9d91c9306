// SPDX-License-Identifier: MIT

// Package supervisor serializes access to heavy model variants.
//
// The recognizers and separator variants each occupy significant
// accelerator memory, so only a hardware-dependent number of heavy
// models may be resident at once. Acquire blocks until a slot frees
// up, evicting the least-recently-used idle model when the budget is
// exceeded. The aligner counts as light and never competes for slots.
package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/types"
)

// LoadFunc warms one model variant. The default is a no-op: the CLI
// tools load their own weights per invocation, and the supervisor
// only enforces the residency budget. A warm-server deployment can
// inject a real loader.
type LoadFunc func(ctx context.Context, kind types.ModelKind, variant string) error

// UnloadFunc releases one model variant.
type UnloadFunc func(kind types.ModelKind, variant string)

type modelKey struct {
	Kind    types.ModelKind
	Variant string
}

type entry struct {
	refs     int
	lastUsed time.Time
	loading  bool
	failed   error
}

// Supervisor owns model residency. All fields behind mu.
type Supervisor struct {
	mu   sync.Mutex
	cond *sync.Cond

	maxHeavy int
	load     LoadFunc
	unload   UnloadFunc
	now      func() time.Time

	resident map[modelKey]*entry
	draining bool
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLoader installs load/unload hooks.
func WithLoader(load LoadFunc, unload UnloadFunc) Option {
	return func(s *Supervisor) {
		s.load = load
		s.unload = unload
	}
}

// New builds a supervisor sized for the probed hardware tier.
func New(tier types.HardwareTier, opts ...Option) *Supervisor {
	s := &Supervisor{
		maxHeavy: tier.MaxResidentHeavy(),
		load:     func(context.Context, types.ModelKind, string) error { return nil },
		unload:   func(types.ModelKind, string) {},
		now:      time.Now,
		resident: make(map[modelKey]*entry),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle pins one model resident until released.
type Handle struct {
	s    *Supervisor
	key  modelKey
	once sync.Once
}

// Kind returns the pinned model kind.
func (h *Handle) Kind() types.ModelKind { return h.key.Kind }

// Variant returns the pinned variant identifier.
func (h *Handle) Variant() string { return h.key.Variant }

// Release unpins the model. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		s := h.s
		s.mu.Lock()
		defer s.mu.Unlock()
		if e, ok := s.resident[h.key]; ok {
			e.refs--
			e.lastUsed = s.now()
		}
		s.cond.Broadcast()
	})
}

// Acquire pins kind/variant resident, loading it first if needed.
// It blocks while the heavy budget is exhausted by in-use models.
func (s *Supervisor) Acquire(ctx context.Context, kind types.ModelKind, variant string) (*Handle, error) {
	key := modelKey{Kind: kind, Variant: variant}

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.draining {
			return nil, types.Ef(types.KindCancelled, "supervisor.acquire", "supervisor draining")
		}
		if err := ctx.Err(); err != nil {
			return nil, types.E(types.KindCancelled, "supervisor.acquire", err)
		}

		if e, ok := s.resident[key]; ok {
			if e.loading {
				s.waitLocked(ctx)
				continue
			}
			e.refs++
			e.lastUsed = s.now()
			return &Handle{s: s, key: key}, nil
		}

		if !kind.IsHeavy() || s.admitHeavyLocked(kind) {
			break
		}
		s.waitLocked(ctx)
	}

	e := &entry{refs: 1, loading: true, lastUsed: s.now()}
	s.resident[key] = e

	s.mu.Unlock()
	err := s.load(ctx, kind, variant)
	s.mu.Lock()

	if err != nil {
		delete(s.resident, key)
		s.cond.Broadcast()
		metrics.RecordModelLoad(kind.String(), "failed")
		return nil, types.Ef(types.KindModelLoad, "supervisor.acquire",
			"load %s/%s: %v", kind, variant, err)
	}
	e.loading = false
	s.cond.Broadcast()
	metrics.RecordModelLoad(kind.String(), "ok")
	metrics.ModelsResident.Inc()
	logger := log.WithComponent("supervisor")
	logger.Info().
		Str("kind", kind.String()).
		Str("variant", variant).
		Int("resident", len(s.resident)).
		Msg("model loaded")
	return &Handle{s: s, key: key}, nil
}

// admitHeavyLocked frees a heavy slot if possible, evicting the
// least-recently-used idle heavy model. Returns false when every
// resident heavy model is pinned.
func (s *Supervisor) admitHeavyLocked(kind types.ModelKind) bool {
	if s.heavyCountLocked() < s.maxHeavy {
		return true
	}

	var victim modelKey
	var victimEntry *entry
	for k, e := range s.resident {
		if !k.Kind.IsHeavy() || e.refs > 0 || e.loading {
			continue
		}
		if victimEntry == nil || e.lastUsed.Before(victimEntry.lastUsed) {
			victim = k
			victimEntry = e
		}
	}
	if victimEntry == nil {
		return false
	}
	s.evictLocked(victim)
	return true
}

func (s *Supervisor) heavyCountLocked() int {
	n := 0
	for k := range s.resident {
		if k.Kind.IsHeavy() {
			n++
		}
	}
	return n
}

func (s *Supervisor) evictLocked(key modelKey) {
	delete(s.resident, key)
	s.unload(key.Kind, key.Variant)
	metrics.RecordModelEviction(key.Kind.String())
	metrics.ModelsResident.Dec()
	logger := log.WithComponent("supervisor")
	logger.Info().
		Str("kind", key.Kind.String()).
		Str("variant", key.Variant).
		Msg("model evicted")
}

// EvictIdle drops every idle resident variant of the given kind.
// Used when a job abandons separation mid-run.
func (s *Supervisor) EvictIdle(kind types.ModelKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.resident {
		if k.Kind == kind && e.refs == 0 && !e.loading {
			s.evictLocked(k)
		}
	}
	s.cond.Broadcast()
}

// Drain blocks new acquisitions and waits until every handle is
// released, then unloads everything. Used on shutdown.
func (s *Supervisor) Drain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draining = true
	s.cond.Broadcast()

	for {
		busy := false
		for k, e := range s.resident {
			if e.refs > 0 || e.loading {
				busy = true
				continue
			}
			s.evictLocked(k)
		}
		if !busy {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return types.E(types.KindCancelled, "supervisor.drain", err)
		}
		s.waitLocked(ctx)
	}
}

// ModelInfo describes one resident model for status reporting.
type ModelInfo struct {
	Kind     types.ModelKind `json:"kind"`
	Variant  string          `json:"variant"`
	Refs     int             `json:"refs"`
	LastUsed time.Time       `json:"last_used"`
}

// Resident snapshots the currently loaded models, most recent first.
func (s *Supervisor) Resident() []ModelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ModelInfo, 0, len(s.resident))
	for k, e := range s.resident {
		if e.loading {
			continue
		}
		out = append(out, ModelInfo{Kind: k.Kind, Variant: k.Variant, Refs: e.refs, LastUsed: e.lastUsed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out
}

// waitLocked sleeps on the condition variable but wakes when ctx is
// cancelled. The caller re-checks its predicate (and ctx) after wake.
func (s *Supervisor) waitLocked(ctx context.Context) {
	if ctx.Done() == nil {
		s.cond.Wait()
		return
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-stop:
		}
	}()
	s.cond.Wait()
	close(stop)
}
