package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber buffer used when New gets 0.
const DefaultBufferSize = 256

// Bus fans events out to any number of subscribers. Publish never blocks:
// a subscriber whose buffer is full loses its oldest pending event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	size   int
	closed bool
}

var _ Publisher = (*Bus)(nil)

// New creates a bus whose subscribers buffer up to bufferSize events.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subs: make(map[uint64]*Subscription),
		size: bufferSize,
	}
}

// Subscribe registers a new subscriber. It only sees events published after
// this call returns.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription{
		bus: b,
		ch:  make(chan Event, b.size),
	}
	if b.closed {
		close(s.ch)
		s.done = true
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Publish delivers evt to every current subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.offer(evt)
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later publishes are dropped and later
// subscriptions start closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.finish()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	s.finish()
}

// Subscription is one consumer of a Bus.
type Subscription struct {
	bus     *Bus
	id      uint64
	ch      chan Event
	mu      sync.Mutex
	done    bool
	dropped atomic.Uint64
}

// Events returns the channel events are delivered on. It is closed by Close
// or when the bus closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the events channel.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

// offer runs under the bus read lock, so finish cannot race with it.
func (s *Subscription) offer(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- evt:
	default:
		s.dropped.Add(1)
	}
}

// finish runs under the bus write lock.
func (s *Subscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}

// Forward calls fn for every event of sub until ctx is done or the
// subscription closes. It closes sub before returning.
func Forward(ctx context.Context, sub *Subscription, fn func(Event)) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			fn(evt)
		}
	}
}
