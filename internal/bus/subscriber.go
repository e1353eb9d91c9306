// SPDX-License-Identifier: MIT

package bus

import (
	"sync"

	"github.com/subwave-io/subwave/internal/metrics"
)

// Subscriber is one attached consumer of a channel. Events are read
// from Events(); the channel is closed when the subscriber is
// disconnected, either by Close, by bus shutdown, or by the bus after
// a non-droppable overflow.
type Subscriber struct {
	bus     *Bus
	channel string
	ch      chan Event

	mu          sync.Mutex
	initialSent bool
	pending     []Event
	closed      bool
}

// Channel returns the channel name this subscriber is attached to.
func (s *Subscriber) Channel() string {
	return s.channel
}

// Events returns the receive side of the subscriber buffer. A closed
// channel means the subscriber must reconnect; the fresh subscription
// will deliver a new initial_state.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber from the bus. Idempotent; safe to call
// from the consumer side at any time.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.bus.remove(s)
}

// enqueue buffers or delivers one event. Called by the bus while
// holding the bus lock; must never block.
func (s *Subscriber) enqueue(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.initialSent {
		s.pending = append(s.pending, ev)
		return
	}
	s.sendLocked(ev)
}

// deliverInitial sends the initial_state event and then flushes every
// event buffered while the snapshot was being computed, in order.
func (s *Subscriber) deliverInitial(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sendLocked(ev)
	s.initialSent = true
	for _, p := range s.pending {
		if s.closed {
			break
		}
		s.sendLocked(p)
	}
	s.pending = nil
}

// sendLocked attempts a non-blocking delivery. A full buffer sheds
// droppable kinds; a non-droppable overflow disconnects the subscriber
// so it reconnects for a consistent snapshot. Caller holds s.mu.
func (s *Subscriber) sendLocked(ev Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}

	if ev.Kind.Droppable() {
		metrics.IncBusDrop(ChannelScope(s.channel), string(ev.Kind))
		return
	}

	metrics.IncBusDisconnect(ChannelScope(s.channel))
	s.closed = true
	close(s.ch)
	// Detach asynchronously: the publisher may hold the bus lock.
	go s.bus.remove(s)
}

// shutdown closes the subscriber without detaching; the bus has
// already forgotten it.
func (s *Subscriber) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
