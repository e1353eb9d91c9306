// SPDX-License-Identifier: MIT

// Package lifecycle owns daemon lifetime: the client heartbeat
// registry that arms idle shutdown, and the LIFO hook runner executed
// during graceful teardown.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// BusyFunc reports whether the daemon still has work that forbids an
// idle exit (running or queued jobs).
type BusyFunc func() bool

// Registry tracks connected clients via heartbeats. When idle exit is
// armed, the daemon shuts down once every client fell silent for the
// grace window and no work is pending.
type Registry struct {
	grace    time.Duration
	idleExit bool
	busy     BusyFunc
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	clients  map[string]time.Time
	armed    bool
	lastSeen time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// DefaultGrace applies when the config leaves the window unset.
const DefaultGrace = 30 * time.Second

// NewRegistry creates a heartbeat registry. busy may be nil, in which
// case the daemon is treated as never busy.
func NewRegistry(cfg config.HeartbeatConfig, busy BusyFunc) *Registry {
	grace := cfg.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	if busy == nil {
		busy = func() bool { return false }
	}
	return &Registry{
		grace:      grace,
		idleExit:   cfg.IdleExit,
		busy:       busy,
		logger:     log.WithComponent("lifecycle"),
		now:        time.Now,
		clients:    make(map[string]time.Time),
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a client. The first registration arms idle shutdown
// when the config asks for it.
func (r *Registry) Register(clientID string) error {
	if clientID == "" {
		return types.Ef(types.KindValidation, "lifecycle.register", "empty client id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.clients[clientID] = now
	r.lastSeen = now
	if r.idleExit && !r.armed {
		r.armed = true
		r.logger.Info().Str("client", clientID).Msg("idle shutdown armed")
	}
	return nil
}

// Heartbeat refreshes a client's liveness. Unknown clients are
// re-registered: the daemon may have restarted under a live client.
func (r *Registry) Heartbeat(clientID string) error {
	if clientID == "" {
		return types.Ef(types.KindValidation, "lifecycle.heartbeat", "empty client id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.clients[clientID] = now
	r.lastSeen = now
	return nil
}

// Unregister removes a client. The grace window still applies before
// an idle exit so a page reload does not kill the daemon.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
}

// Clients returns the number of live clients.
func (r *Registry) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// RequestShutdown forces the shutdown sequence, as the explicit
// endpoint does. Idempotent.
func (r *Registry) RequestShutdown() {
	r.shutdownOnce.Do(func() {
		r.logger.Info().Msg("shutdown requested")
		close(r.shutdownCh)
	})
}

// ShutdownRequested exposes the signal the daemon main loop selects on.
func (r *Registry) ShutdownRequested() <-chan struct{} {
	return r.shutdownCh
}

// Watch drives the idle detector until ctx is done. It fires the
// shutdown signal when the registry is armed, every client has been
// silent past the grace window, and nothing is busy.
func (r *Registry) Watch(ctx context.Context) error {
	interval := r.grace / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.shutdownCh:
			return nil
		case <-ticker.C:
			if r.idleExpired() {
				r.logger.Info().Dur("grace", r.grace).Msg("no client heartbeat, shutting down")
				r.RequestShutdown()
				return nil
			}
		}
	}
}

func (r *Registry) idleExpired() bool {
	r.mu.Lock()
	armed := r.armed
	now := r.now()
	fresh := false
	for _, seen := range r.clients {
		if now.Sub(seen) <= r.grace {
			fresh = true
			break
		}
	}
	quiet := now.Sub(r.lastSeen) > r.grace
	r.mu.Unlock()

	if !armed || fresh || !quiet {
		return false
	}
	return !r.busy()
}

// Hook is one teardown step. It gets the shutdown context and must
// respect its deadline.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Closer runs registered hooks in LIFO order on shutdown, so the
// subsystems started last release first.
type Closer struct {
	logger zerolog.Logger

	mu    sync.Mutex
	hooks []namedHook
	done  bool
}

// NewCloser creates an empty hook runner.
func NewCloser() *Closer {
	return &Closer{logger: log.WithComponent("lifecycle")}
}

// Register appends a named shutdown hook.
func (c *Closer) Register(name string, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, namedHook{name: name, fn: fn})
}

// Shutdown executes the hooks in reverse registration order. Every
// hook runs even when an earlier one fails; the first error is
// returned. Idempotent.
func (c *Closer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return nil
	}
	c.done = true
	hooks := make([]namedHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	var first error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		began := time.Now()
		if err := h.fn(ctx); err != nil {
			c.logger.Error().Err(err).Str("hook", h.name).
				Dur("took", time.Since(began)).Msg("shutdown hook failed")
			if first == nil {
				first = err
			}
			continue
		}
		c.logger.Debug().Str("hook", h.name).
			Dur("took", time.Since(began)).Msg("shutdown hook done")
	}
	return first
}
