package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a thread-safe bounded cache with least-recently-used eviction.
// All operations are O(1).
type LRU[V any] struct {
	maxSize int
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = least recent, back = most recent
}

type lruEntry[V any] struct {
	key   string
	value V
}

// NewLRU creates an LRU cache holding at most maxSize entries
func NewLRU[V any](maxSize int) *LRU[V] {
	return &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value and promotes it to most recently used
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.order.MoveToBack(elem)
	return elem.Value.(*lruEntry[V]).value, true
}

// Set stores a value, evicting the least recently used entry on overflow
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruEntry[V]).value = value
		c.order.MoveToBack(elem)
		return
	}

	c.items[key] = c.order.PushBack(&lruEntry[V]{key: key, value: value})
	if c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry[V]).key)
	}
}

// Delete removes a key, reporting whether it was present
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	return true
}

// Clear removes all entries
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Size returns the number of entries
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns all keys, least recent first
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*lruEntry[V]).key)
	}
	return keys
}

// TTL is a thread-safe cache whose entries expire after a per-entry deadline.
// Expired entries are deleted lazily on Get or in bulk via CleanupExpired.
type TTL[V any] struct {
	defaultTTL time.Duration
	mu         sync.Mutex
	items      map[string]ttlEntry[V]
	now        func() time.Time
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTL creates a TTL cache with the given default entry lifetime
func NewTTL[V any](defaultTTL time.Duration) *TTL[V] {
	return &TTL[V]{
		defaultTTL: defaultTTL,
		items:      make(map[string]ttlEntry[V]),
		now:        time.Now,
	}
}

// Get retrieves a value if it has not expired; expired entries are deleted
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores a value with the default TTL
func (c *TTL[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with an explicit TTL
func (c *TTL[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes a key, reporting whether it was present
func (c *TTL[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	return true
}

// Clear removes all entries
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]ttlEntry[V])
}

// CleanupExpired scans and purges expired entries, returning the count removed
func (c *TTL[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if !now.Before(entry.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of entries, expired ones included
func (c *TTL[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// LRUTTL combines LRU eviction with per-entry expiry. Get checks TTL first,
// then promotes.
type LRUTTL[V any] struct {
	maxSize    int
	defaultTTL time.Duration
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	now        func() time.Time
}

type lruTTLEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// NewLRUTTL creates a combined LRU+TTL cache
func NewLRUTTL[V any](maxSize int, defaultTTL time.Duration) *LRUTTL[V] {
	return &LRUTTL[V]{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get retrieves a value if unexpired and promotes it to most recently used
func (c *LRUTTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	entry := elem.Value.(*lruTTLEntry[V])
	if !c.now().Before(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		var zero V
		return zero, false
	}

	c.order.MoveToBack(elem)
	return entry.value, true
}

// Set stores a value with the default TTL
func (c *LRUTTL[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with an explicit TTL, evicting the least recently
// used entry on overflow
func (c *LRUTTL[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruTTLEntry[V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToBack(elem)
		return
	}

	c.items[key] = c.order.PushBack(&lruTTLEntry[V]{key: key, value: value, expiresAt: expiresAt})
	if c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruTTLEntry[V]).key)
	}
}

// Delete removes a key, reporting whether it was present
func (c *LRUTTL[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.items, key)
	return true
}

// Clear removes all entries
func (c *LRUTTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// CleanupExpired scans and purges expired entries, returning the count removed
func (c *LRUTTL[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*lruTTLEntry[V])
		if !now.Before(entry.expiresAt) {
			c.order.Remove(elem)
			delete(c.items, entry.key)
			removed++
		}
		elem = next
	}
	return removed
}

// Size returns the number of entries, expired ones included
func (c *LRUTTL[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns all keys, least recent first
func (c *LRUTTL[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*lruTTLEntry[V]).key)
	}
	return keys
}
