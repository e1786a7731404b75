// Package remote defines the document-store contract the sync core runs
// against: keyed reads, whole-value writes, and live subscriptions. The wire
// values are JSON-shaped: object documents and ordered lists of records.
package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mrezende/courier/internal/bus"
)

// ErrAbsent is returned by Read when the key holds no value.
var ErrAbsent = errors.New("key absent")

// Store is the abstract remote document store.
type Store interface {
	// Read returns the current value at key, or ErrAbsent.
	Read(ctx context.Context, key string) (any, error)
	// Write replaces the whole value at key. Last write wins.
	Write(ctx context.Context, key string, value any) error
	// Subscribe delivers the current value (if any) and every subsequent
	// write at key until the subscription is cancelled. fn runs on the
	// subscription's own goroutine.
	Subscribe(key string, fn func(value any)) *Subscription
}

// Subscription is a live observer handle. Cancel must be called when the
// owning screen is dismissed or the callback leaks.
type Subscription struct {
	ID    string
	stop  chan struct{}
	once  sync.Once
	unsub func()
}

// NewSubscription wires a change channel to fn on a dedicated goroutine,
// delivering initial first when hasInitial is set.
func NewSubscription(initial any, hasInitial bool, ch <-chan bus.Event, unsub func(), fn func(any)) *Subscription {
	s := &Subscription{
		ID:    uuid.New().String(),
		stop:  make(chan struct{}),
		unsub: unsub,
	}
	go func() {
		if hasInitial {
			fn(initial)
		}
		for {
			select {
			case evt := <-ch:
				fn(evt.Value)
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Cancel tears the subscription down. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.unsub()
		close(s.stop)
	})
}

// List coerces a store value into a list of records. JSON decoding hands
// lists back as []any, in-memory writes keep them typed; both shapes appear.
func List(v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []map[string]any:
		return t, true
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, rec)
		}
		return out, true
	default:
		return nil, false
	}
}

// Doc coerces a store value into an object document.
func Doc(v any) (map[string]any, bool) {
	d, ok := v.(map[string]any)
	return d, ok
}
