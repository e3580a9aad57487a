// Package broadcast is a bounded, multi-subscriber publish channel for
// theme events.
//
// Every subscriber owns a buffered cursor. Publish never waits: when a
// cursor is full the oldest pending event is discarded to make room and the
// subscriber is marked as lagged. The subscriber list is copy-on-write, so
// delivery never holds the lock that guards Subscribe/Unsubscribe.
package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// DefaultCapacity is the number of pending events each subscriber may
// accumulate before it is considered lagged.
const DefaultCapacity = 16

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("broadcast channel closed")

// Channel fans out published themes to every live subscriber.
type Channel struct {
	capacity int

	mu     sync.Mutex // serializes writers of subs
	subs   atomic.Pointer[[]*Subscriber]
	closed atomic.Bool
	nextID atomic.Uint64
}

// New returns a channel whose subscribers buffer up to capacity events.
// A capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Channel{capacity: capacity}
	empty := []*Subscriber{}
	c.subs.Store(&empty)
	return c
}

// Capacity returns the per-subscriber buffer size.
func (c *Channel) Capacity() int {
	return c.capacity
}

// Subscribe registers a new cursor. It only observes events published after
// it was created.
func (c *Channel) Subscribe() (*Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil, ErrClosed
	}

	s := &Subscriber{
		id: c.nextID.Add(1),
		ch: make(chan theme.Theme, c.capacity),
	}
	old := *c.subs.Load()
	next := make([]*Subscriber, len(old), len(old)+1)
	copy(next, old)
	next = append(next, s)
	c.subs.Store(&next)
	return s, nil
}

// Unsubscribe removes s and closes its cursor. Unknown or already removed
// subscribers are ignored.
func (c *Channel) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	c.mu.Lock()
	old := *c.subs.Load()
	next := make([]*Subscriber, 0, len(old))
	for _, sub := range old {
		if sub != s {
			next = append(next, sub)
		}
	}
	c.subs.Store(&next)
	c.mu.Unlock()

	s.close()
}

// Publish delivers t to every current subscriber and returns how many
// subscribers it reached. Zero subscribers is not an error.
func (c *Channel) Publish(t theme.Theme) int {
	if c.closed.Load() {
		return 0
	}
	subs := *c.subs.Load()
	n := 0
	for _, s := range subs {
		if s.deliver(t) {
			n++
		}
	}
	return n
}

// Len returns the number of live subscribers.
func (c *Channel) Len() int {
	return len(*c.subs.Load())
}

// Close closes every subscriber cursor. Receivers drain what is pending
// and then observe a closed channel. Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed.Swap(true) {
		c.mu.Unlock()
		return
	}
	subs := *c.subs.Load()
	empty := []*Subscriber{}
	c.subs.Store(&empty)
	c.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Subscriber is one independent cursor into a Channel.
type Subscriber struct {
	id     uint64
	mu     sync.Mutex // guards sends against close
	ch     chan theme.Theme
	closed bool
	lagged atomic.Uint64
}

// ID is unique within the owning Channel.
func (s *Subscriber) ID() uint64 {
	return s.id
}

// C returns the receive side of the cursor. It is closed on Unsubscribe or
// when the Channel closes.
func (s *Subscriber) C() <-chan theme.Theme {
	return s.ch
}

// Lagged returns the number of events dropped since the previous call and
// resets the counter.
func (s *Subscriber) Lagged() uint64 {
	return s.lagged.Swap(0)
}

func (s *Subscriber) deliver(t theme.Theme) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- t:
		return true
	default:
	}
	// Full: discard the oldest pending event so the newest is retained.
	select {
	case <-s.ch:
		s.lagged.Add(1)
	default:
	}
	select {
	case s.ch <- t:
	default:
		s.lagged.Add(1)
	}
	return true
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
