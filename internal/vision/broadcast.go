package vision

import (
	"sync"

	"github.com/voxelware/aura/internal/mailbox"
)

// Broadcaster fans SwitchEvents out to every subscriber. Each subscriber gets
// its own unbounded mailbox so a slow client never delays delivery to others.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*mailbox.Mailbox[SwitchEvent]
	nextID uint64
	closed bool
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*mailbox.Mailbox[SwitchEvent])}
}

// Subscribe registers a new subscriber and returns its id and mailbox. The
// caller drains the mailbox from a single goroutine and must call Unsubscribe
// when done.
func (b *Broadcaster) Subscribe() (uint64, *mailbox.Mailbox[SwitchEvent]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	mb := mailbox.New[SwitchEvent]()
	if b.closed {
		mb.Close()
		return id, mb
	}
	b.subs[id] = mb
	return id, mb
}

// Unsubscribe removes and closes the subscriber's mailbox. Unknown ids are
// ignored.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	mb, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		mb.Close()
	}
}

// Publish delivers ev to every current subscriber without blocking.
func (b *Broadcaster) Publish(ev SwitchEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, mb := range b.subs {
		mb.Put(ev)
	}
}

// Close closes all subscriber mailboxes. Subsequent Subscribe calls return an
// already-closed mailbox.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, mb := range b.subs {
		mb.Close()
		delete(b.subs, id)
	}
}

// Subscribers reports the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
