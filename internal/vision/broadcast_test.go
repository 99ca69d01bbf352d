package vision

import (
	"context"
	"testing"
	"time"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	_, mb1 := b.Subscribe()
	_, mb2 := b.Subscribe()

	ev := SwitchEvent{From: NoPerson, To: "alice", At: time.Now()}
	b.Publish(ev)

	ctx := context.Background()
	for i, mb := range []interface {
		Next(context.Context) (SwitchEvent, bool)
	}{mb1, mb2} {
		got, ok := mb.Next(ctx)
		if !ok {
			t.Fatalf("subscriber %d: mailbox closed", i)
		}
		if got.To != "alice" {
			t.Errorf("subscriber %d: To = %q, want alice", i, got.To)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	id, mb := b.Subscribe()
	b.Unsubscribe(id)

	b.Publish(SwitchEvent{To: "alice"})

	if _, ok := mb.Next(context.Background()); ok {
		t.Fatal("unsubscribed mailbox received an event")
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", b.Subscribers())
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster()
	b.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish(SwitchEvent{To: "alice"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on an undrained subscriber")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster()
	b.Close()

	_, mb := b.Subscribe()
	if _, ok := mb.Next(context.Background()); ok {
		t.Fatal("mailbox from a closed broadcaster should be closed")
	}
}
