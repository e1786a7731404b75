package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process change notifier for document-store keys. Subscribers
// register for an exact key or a key subtree; publishers are never blocked.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	key string
	ch  chan Event
}

// New creates a new bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers an event to all matching subscribers.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if matches(sub.key, evt.Key) {
			select {
			case sub.ch <- evt:
			default:
				// Drop event if subscriber is full (non-blocking).
			}
		}
	}
}

// Subscribe returns a channel that receives change events for key. An empty
// key matches every change. bufSize controls the channel buffer. Returns the
// channel and an unsubscribe function.
func (b *Bus) Subscribe(key string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{key: key, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// matches reports whether a subscription for sub should see a change to key.
// Matching stops at path boundaries so a user-record subscription does not
// fire when that user's conversation index changes.
func matches(sub, key string) bool {
	if sub == "" || sub == key {
		return true
	}
	return strings.HasPrefix(key, sub+"/")
}
