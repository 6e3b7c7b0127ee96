package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// LRU is a bounded in-process cache with per-entry expiry, used when the
// external store is unreachable. Safe for concurrent use.
type LRU struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recent
	now      func() time.Time

	evictions atomic.Int64
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRU creates an LRU holding at most capacity entries.
func NewLRU(capacity int, now func() time.Time) *LRU {
	if capacity <= 0 {
		capacity = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &LRU{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      now,
	}
}

// Get returns a live entry and marks it most recently used.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*lruEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set adds or replaces an entry, evicting the least recently used one when
// full. A non-positive ttl is ignored.
func (c *LRU) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions.Add(1)
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
}

// Prune drops every expired entry and returns how many were removed.
func (c *LRU) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*lruEntry).expiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Evictions returns how many live entries were dropped for capacity.
func (c *LRU) Evictions() int64 {
	return c.evictions.Load()
}

func (c *LRU) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry).key)
}
