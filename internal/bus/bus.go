// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/types"
)

const (
	// DefaultBufferSize bounds each subscriber's event buffer.
	DefaultBufferSize = 256

	// DefaultPingInterval is how long a channel may stay silent before
	// the bus emits a ping to its subscribers.
	DefaultPingInterval = 10 * time.Second
)

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize overrides the per-subscriber buffer size.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithPingInterval overrides the idle-channel ping interval.
func WithPingInterval(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.pingInterval = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// Bus is the in-process event fan-out. The zero value is not usable;
// construct with New.
type Bus struct {
	bufferSize   int
	pingInterval time.Duration
	now          func() time.Time

	seq atomic.Uint64

	mu       sync.RWMutex
	subs     map[string][]*Subscriber
	lastFlow map[string]time.Time
	closed   bool
}

// New creates a Bus with the given options.
func New(opts ...Option) *Bus {
	b := &Bus{
		bufferSize:   DefaultBufferSize,
		pingInterval: DefaultPingInterval,
		now:          time.Now,
		subs:         make(map[string][]*Subscriber),
		lastFlow:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers an event to every subscriber of a channel. It
// assigns the monotonic id and never blocks on slow subscribers.
//
// ID assignment and fan-out happen under one lock so that every
// subscriber of a channel observes events in publication order with
// strictly increasing ids.
func (b *Bus) Publish(channel string, kind types.EventKind, payload any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	ev := Event{
		Channel: channel,
		Kind:    kind,
		ID:      b.seq.Add(1),
		Payload: payload,
	}
	b.lastFlow[channel] = b.now()
	for _, sub := range b.subs[channel] {
		sub.enqueue(ev)
	}
	b.mu.Unlock()

	metrics.IncBusPublished(string(kind))
}

// PublishQueueUpdate publishes the scheduler view to the global channel.
func (b *Bus) PublishQueueUpdate(p QueueUpdatePayload) {
	b.Publish(ChannelGlobal, types.EventQueueUpdate, p)
}

// PublishJobStatus publishes a status transition to the global channel
// and the job's own channel.
func (b *Bus) PublishJobStatus(p JobStatusPayload) {
	b.Publish(ChannelGlobal, types.EventJobStatus, p)
	b.Publish(JobChannel(p.ID), types.EventJobStatus, p)
}

// PublishJobProgress publishes progress to the global channel and the
// job's own channel.
func (b *Bus) PublishJobProgress(p JobProgressPayload) {
	b.Publish(ChannelGlobal, types.EventJobProgress, p)
	b.Publish(JobChannel(p.ID), types.EventJobProgress, p)
}

// PublishFragment publishes sentences for one segment to the job channel.
func (b *Bus) PublishFragment(jobID string, p FragmentPayload) {
	b.Publish(JobChannel(jobID), types.EventFragment, p)
}

// PublishSignal publishes a one-shot notification to the job channel.
func (b *Bus) PublishSignal(jobID string, name types.SignalName, detail map[string]string) {
	b.Publish(JobChannel(jobID), types.EventSignal, SignalPayload{Name: name, Detail: detail})
}

// Subscribe registers a subscriber on a channel. The snapshot callback
// is invoked once, after registration but outside the bus lock, and its
// result is delivered as the guaranteed-first initial_state event.
// Events published while the snapshot is being computed are buffered
// and flushed afterwards in order.
func (b *Bus) Subscribe(channel string, snapshot func() any) (*Subscriber, error) {
	sub := &Subscriber{
		bus:     b,
		channel: channel,
		ch:      make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, types.Ef(types.KindValidation, "bus.subscribe", "bus is closed")
	}
	b.subs[channel] = append(b.subs[channel], sub)
	// The initial id is claimed while registered under the lock, so
	// every event buffered after this point carries a higher id.
	initialID := b.seq.Add(1)
	b.mu.Unlock()

	metrics.BusSubscribers.WithLabelValues(ChannelScope(channel)).Inc()

	var initial any
	if snapshot != nil {
		initial = snapshot()
	}
	sub.deliverInitial(Event{
		Channel: channel,
		Kind:    types.EventInitialState,
		ID:      initialID,
		Payload: initial,
	})
	return sub, nil
}

// remove detaches a subscriber; idempotent.
func (b *Bus) remove(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lst := b.subs[sub.channel]
	out := lst[:0]
	removed := false
	for _, s := range lst {
		if s != sub {
			out = append(out, s)
		} else {
			removed = true
		}
	}
	if len(out) == 0 {
		delete(b.subs, sub.channel)
		delete(b.lastFlow, sub.channel)
	} else {
		b.subs[sub.channel] = out
	}
	if removed {
		metrics.BusSubscribers.WithLabelValues(ChannelScope(sub.channel)).Dec()
	}
}

// Run emits pings on idle channels until ctx is cancelled. Call in a
// dedicated goroutine.
func (b *Bus) Run(ctx context.Context) {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.pingIdleChannels()
		}
	}
}

func (b *Bus) pingIdleChannels() {
	now := b.now()

	b.mu.RLock()
	var idle []string
	for channel := range b.subs {
		if now.Sub(b.lastFlow[channel]) >= b.pingInterval {
			idle = append(idle, channel)
		}
	}
	b.mu.RUnlock()

	for _, channel := range idle {
		b.Publish(channel, types.EventPing, PingPayload{Time: now.UnixMilli()})
	}
}

// Close disconnects all subscribers and rejects further publishes.
// Used during coordinated shutdown drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscriber
	for _, lst := range b.subs {
		all = append(all, lst...)
	}
	b.subs = make(map[string][]*Subscriber)
	b.lastFlow = make(map[string]time.Time)
	b.mu.Unlock()

	for _, sub := range all {
		sub.shutdown()
	}
	if len(all) > 0 {
		logger := log.WithComponent("bus")
		logger.Debug().
			Int("subscribers", len(all)).
			Str("event", "bus.drained").
			Msg("event bus drained")
	}
}
