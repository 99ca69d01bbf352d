// Package mailbox implements an unbounded multi-producer single-consumer
// mailbox.
//
// Producers never block: Put appends under a mutex and returns immediately.
// The consumer drains items in FIFO order from a single dedicated goroutine
// via Next. Unboundedness is deliberate — a slow consumer must never couple
// back to the producer; isolation between consumers is handled by giving each
// its own mailbox.
package mailbox

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO queue safe for many producers and exactly one
// consumer.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// signal has capacity 1; Next re-checks items after every wake, so a
	// coalesced signal can never strand a queued item.
	signal chan struct{}
}

// New returns an empty, open mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{signal: make(chan struct{}, 1)}
}

// Put enqueues v. It never blocks. Returns false if the mailbox has been
// closed, in which case v is discarded.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Next blocks until an item is available, the mailbox is closed and drained,
// or ctx is done. The second return value is false when no further items will
// be delivered.
func (m *Mailbox[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.items[0]
			m.items = m.items[1:]
			m.mu.Unlock()
			return v, true
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return zero, false
		}

		select {
		case <-ctx.Done():
			return zero, false
		case <-m.signal:
		}
	}
}

// Len reports the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close marks the mailbox closed and wakes the consumer. Items already queued
// remain drainable via Next; subsequent Puts are discarded. Safe to call more
// than once.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}
