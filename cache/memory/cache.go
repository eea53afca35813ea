// Package memory provides a bounded in-process cache tier.
package memory

import (
	"container/list"
	"sync"
	"time"

	"github.com/meigma/mediacache/cache"
	"github.com/meigma/mediacache/key"
)

const (
	// DefaultMaxBytes is the default total cost budget.
	DefaultMaxBytes int64 = 50 << 20 // 50 MB
	// DefaultMaxEntries is the default entry-count budget.
	DefaultMaxEntries = 100
)

// Cache is an LRU cache bounded by total byte cost and entry count.
// The cache is safe for concurrent use.
//
// Cached slices are shared with callers and must not be modified.
type Cache struct {
	mu         sync.Mutex
	maxBytes   int64
	maxEntries int
	bytes      int64
	entries    map[key.Key]*list.Element
	order      *list.List // front = most recently used
}

type entry struct {
	key        key.Key
	data       []byte
	lastAccess time.Time
}

var _ cache.Store = (*Cache)(nil)

// Option configures a memory cache.
type Option func(*Cache)

// WithMaxBytes sets the total cost budget in bytes.
// Values <= 0 keep the default.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithMaxEntries sets the entry-count budget.
// Values <= 0 keep the default.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// New creates a memory cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxBytes:   DefaultMaxBytes,
		maxEntries: DefaultMaxEntries,
		entries:    make(map[key.Key]*list.Element),
		order:      list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the blob for k and marks it most recently used.
func (c *Cache) Get(k key.Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry) //nolint:errcheck // type is guaranteed by Put
	e.lastAccess = time.Now()
	c.order.MoveToFront(elem)
	return e.data, true
}

// Put inserts or replaces the blob for k, evicting least recently used
// entries until both budgets hold. A blob larger than the byte budget is
// not cached. Put never fails.
func (c *Cache) Put(k key.Key, data []byte) error {
	size := int64(len(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[k]; ok {
		c.removeLocked(elem)
	}
	if size > c.maxBytes {
		return nil
	}

	for c.order.Len() > 0 && (c.bytes+size > c.maxBytes || c.order.Len()+1 > c.maxEntries) {
		c.removeLocked(c.order.Back())
	}

	elem := c.order.PushFront(&entry{
		key:        k,
		data:       data,
		lastAccess: time.Now(),
	})
	c.entries[k] = elem
	c.bytes += size
	return nil
}

// Delete removes the entry for k.
func (c *Cache) Delete(k key.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[k]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[key.Key]*list.Element)
	c.order.Init()
	c.bytes = 0
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// SizeBytes returns the total cost of cached entries.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// MaxBytes returns the configured byte budget.
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// MaxEntries returns the configured entry budget.
func (c *Cache) MaxEntries() int {
	return c.maxEntries
}

// removeLocked removes an element from both the list and map.
// Caller must hold c.mu.
func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry) //nolint:errcheck // type is guaranteed by Put
	c.order.Remove(elem)
	delete(c.entries, e.key)
	c.bytes -= int64(len(e.data))
}
