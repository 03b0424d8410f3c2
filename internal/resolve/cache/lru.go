package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 15 * time.Minute
)

// LRU is an in-process Cache bounded by entry count and TTL. One mutex
// guards the map and the recency list; Get mutates recency, so reads take
// the write lock too.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front is most recently used
	now      func() time.Time

	evictions int
}

type lruEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

type LRUOption func(*LRU)

// WithClock replaces time.Now, for tests that step through expiry.
func WithClock(now func() time.Time) LRUOption {
	return func(c *LRU) {
		c.now = now
	}
}

// NewLRU creates a cache holding at most size entries for ttl each. Zero
// values use DefaultSize and DefaultTTL.
func NewLRU(size int, ttl time.Duration, opts ...LRUOption) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &LRU{
		capacity: size,
		ttl:      ttl,
		items:    make(map[string]*list.Element, size),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LRU) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false, nil
	}
	entry := elem.Value.(*lruEntry)
	if !c.now().Before(entry.expiresAt) {
		c.remove(elem)
		return "", false, nil
	}
	c.order.MoveToFront(elem)
	return entry.value, true, nil
}

func (c *LRU) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}
	if c.order.Len() >= c.capacity {
		c.remove(c.order.Back())
		c.evictions++
	}
	c.items[key] = c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

// Len counts entries, including expired ones not yet touched.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Evictions counts entries dropped for capacity.
func (c *LRU) Evictions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

func (c *LRU) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry).key)
}
