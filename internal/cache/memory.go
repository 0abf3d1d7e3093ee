package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errCacheClosed = errors.New("cache is closed")

// MemoryCache implements Cache using an in-memory LRU with per-key expiry.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	config  Config
	now     func() time.Time
	hits    int64
	misses  int64
	stopCh  chan struct{}
	stopped bool
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(cfg Config) *MemoryCache {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	c := &MemoryCache{
		items:  make(map[string]*list.Element),
		lru:    list.New(),
		config: cfg,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, elem := range c.items {
		if now.After(elem.Value.(*memoryEntry).expiresAt) {
			c.deleteLocked(key)
		}
	}
}

func (c *MemoryCache) deleteLocked(key string) {
	if elem, ok := c.items[key]; ok {
		c.lru.Remove(elem)
		delete(c.items, key)
	}
}

// lookupLocked returns the live entry for key, dropping it if expired.
func (c *MemoryCache) lookupLocked(key string) (*memoryEntry, bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if c.now().After(entry.expiresAt) {
		c.deleteLocked(key)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return entry, true
}

func (c *MemoryCache) storeLocked(key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	expiresAt := c.now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return
	}
	for c.config.MaxItems > 0 && c.lru.Len() >= c.config.MaxItems {
		c.deleteLocked(c.lru.Back().Value.(*memoryEntry).key)
	}
	c.items[key] = c.lru.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, errCacheClosed
	}
	entry, ok := c.lookupLocked(key)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrCacheMiss
	}
	atomic.AddInt64(&c.hits, 1)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a value in the cache with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errCacheClosed
	}
	c.storeLocked(key, append([]byte(nil), value...), ttl)
	return nil
}

// Append adds value to the end of key and resets its expiry.
func (c *MemoryCache) Append(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errCacheClosed
	}
	var buf []byte
	if entry, ok := c.lookupLocked(key); ok {
		buf = append(buf, entry.value...)
	}
	c.storeLocked(key, append(buf, value...), ttl)
	return nil
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
	return nil
}

// Exists checks if a key exists in the cache.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(key)
	return ok, nil
}

// Close stops the cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.stopCh)
		c.stopped = true
	}
	return nil
}

// Health reports an error once the cache is closed.
func (c *MemoryCache) Health(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errCacheClosed
	}
	return nil
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	keys := int64(len(c.items))
	c.mu.Unlock()

	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Keys:   keys,
	}
}
