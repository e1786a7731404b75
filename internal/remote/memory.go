package remote

import (
	"context"
	"sync"
	"time"

	"github.com/mrezende/courier/internal/bus"
)

// Memory is an in-process Store used by tests and local development. Values
// are deep-copied on the way in and out so callers never alias store state.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]any
	notify *bus.Bus
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]any),
		notify: bus.New(),
	}
}

func (m *Memory) Read(_ context.Context, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.docs[key]
	if !ok {
		return nil, ErrAbsent
	}
	return clone(v), nil
}

func (m *Memory) Write(_ context.Context, key string, value any) error {
	v := clone(value)
	m.mu.Lock()
	m.docs[key] = v
	m.mu.Unlock()

	m.notify.Publish(bus.Event{
		Key:       key,
		Timestamp: time.Now(),
		Value:     clone(v),
	})
	return nil
}

func (m *Memory) Subscribe(key string, fn func(value any)) *Subscription {
	ch, unsub := m.notify.Subscribe(key, 64)

	m.mu.RLock()
	initial, ok := m.docs[key]
	if ok {
		initial = clone(initial)
	}
	m.mu.RUnlock()

	return NewSubscription(initial, ok, ch, unsub, fn)
}

// clone deep-copies the JSON-shaped values the store holds.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = clone(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = clone(item).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = clone(item)
		}
		return out
	default:
		return v
	}
}
