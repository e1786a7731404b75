// Package cache is a bounded in-memory byte cache keyed by URL, used by the
// view layer for downloaded avatars and attachments.
package cache

import (
	"container/list"
	"sync"
)

// Cache is a fixed-capacity LRU byte cache. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	items      map[string]*list.Element
}

type entry struct {
	key  string
	data []byte
}

// New creates a cache holding at most maxEntries items. Zero or negative
// means unbounded.
func New(maxEntries int) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

// Get returns the cached bytes for key, marking it recently used.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).data, true
}

// Put stores data under key, evicting the least recently used item when the
// cache is full.
func (c *Cache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*entry).data = data
		return
	}
	c.items[key] = c.order.PushFront(&entry{key: key, data: data})
	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
}

// Evict removes key from the cache, reporting whether it was present.
func (c *Cache) Evict(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return true
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
