package vision

import (
	"context"
	"sync/atomic"
)

// DefaultQueueCapacity bounds the recognition queue so a slow recogniser
// never backpressures the camera.
const DefaultQueueCapacity = 2

// FrameQueue is a bounded queue with drop-oldest-on-full semantics. Push is
// non-blocking; when the queue is full the oldest frame is evicted, counted,
// and the new frame takes its place.
//
// The queue assumes a single producer (the ingest loop) and a single consumer
// (the recognition worker).
type FrameQueue struct {
	ch      chan Frame
	dropped atomic.Int64
}

// NewFrameQueue returns a queue of the given capacity. Capacities below 1 use
// DefaultQueueCapacity.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &FrameQueue{ch: make(chan Frame, capacity)}
}

// Push enqueues f without blocking. Returns true when an older frame was
// dropped to make room.
func (q *FrameQueue) Push(f Frame) (dropped bool) {
	select {
	case q.ch <- f:
		return false
	default:
	}

	// Full: evict the oldest, then retry. With a single producer the retry
	// cannot fail; the fallback counts the incoming frame as the drop.
	select {
	case <-q.ch:
		q.dropped.Add(1)
		dropped = true
	default:
	}

	select {
	case q.ch <- f:
	default:
		q.dropped.Add(1)
		dropped = true
	}
	return dropped
}

// Pop blocks until a frame is available or ctx is done. The second return
// value is false only on context cancellation.
func (q *FrameQueue) Pop(ctx context.Context) (Frame, bool) {
	select {
	case f := <-q.ch:
		return f, true
	case <-ctx.Done():
		return Frame{}, false
	}
}

// Depth reports the number of queued frames.
func (q *FrameQueue) Depth() int { return len(q.ch) }

// Dropped reports the total number of frames dropped since creation.
func (q *FrameQueue) Dropped() int64 { return q.dropped.Load() }
