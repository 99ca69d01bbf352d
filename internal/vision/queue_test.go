package vision

import (
	"context"
	"testing"
	"time"
)

func frameN(n byte) Frame {
	return Frame{JPEG: []byte{n}, At: time.Now()}
}

func TestFrameQueueDropOldest(t *testing.T) {
	q := NewFrameQueue(2)

	if dropped := q.Push(frameN(1)); dropped {
		t.Error("push into empty queue reported a drop")
	}
	if dropped := q.Push(frameN(2)); dropped {
		t.Error("push into non-full queue reported a drop")
	}
	if dropped := q.Push(frameN(3)); !dropped {
		t.Error("push into full queue should drop the oldest")
	}

	if q.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", q.Depth())
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", q.Dropped())
	}

	ctx := context.Background()
	f, _ := q.Pop(ctx)
	if f.JPEG[0] != 2 {
		t.Errorf("first popped = %d, want 2 (oldest frame 1 was dropped)", f.JPEG[0])
	}
	f, _ = q.Pop(ctx)
	if f.JPEG[0] != 3 {
		t.Errorf("second popped = %d, want 3", f.JPEG[0])
	}
}

func TestFrameQueueProducerNeverBlocks(t *testing.T) {
	// Feed far faster than any consumer with no consumer at all; the producer
	// must finish promptly and depth must never exceed capacity.
	q := NewFrameQueue(2)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 10_000; i++ {
			q.Push(frameN(byte(i)))
			if d := q.Depth(); d > 2 {
				t.Errorf("depth %d exceeds capacity", d)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked")
	}
	if q.Dropped() != 10_000-2 {
		t.Errorf("dropped = %d, want %d", q.Dropped(), 10_000-2)
	}
}

func TestFrameQueuePopHonoursContext(t *testing.T) {
	q := NewFrameQueue(2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, ok := q.Pop(ctx); ok {
		t.Fatal("Pop returned a frame from an empty queue")
	}
}
