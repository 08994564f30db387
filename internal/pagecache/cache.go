// Package pagecache holds compiled pages keyed by source path for the
// lifetime of the process.
package pagecache

import (
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/pagelet/internal/page"
)

// Cache maps source paths to compiled pages. Entries never expire and are
// never evicted.
type Cache struct {
	entries map[string]*page.Entry
	mutex   sync.RWMutex
	group   singleflight.Group

	// Statistics tracking (atomic for thread safety)
	hits   int64
	misses int64
	sets   int64
	shared int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Shared  int64 `json:"shared"`
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*page.Entry)}
}

// Get returns the entry for path.
func (c *Cache) Get(path string) (*page.Entry, bool) {
	c.mutex.RLock()
	entry, ok := c.entries[path]
	c.mutex.RUnlock()

	if ok {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return entry, ok
}

// Set stores entry under path, replacing any previous entry.
func (c *Cache) Set(path string, entry *page.Entry) {
	c.mutex.Lock()
	c.entries[path] = entry
	c.mutex.Unlock()

	atomic.AddInt64(&c.sets, 1)
}

// Do returns the cached entry for path, or calls compile and stores its
// result. Concurrent calls for the same path share a single compile. Failed
// compiles are not stored.
func (c *Cache) Do(path string, compile func() (*page.Entry, error)) (*page.Entry, error) {
	if entry, ok := c.Get(path); ok {
		return entry, nil
	}

	v, err, shared := c.group.Do(path, func() (interface{}, error) {
		// A caller that missed just before the previous flight finished.
		c.mutex.RLock()
		entry, ok := c.entries[path]
		c.mutex.RUnlock()
		if ok {
			return entry, nil
		}

		entry, err := compile()
		if err != nil {
			return nil, err
		}
		c.Set(path, entry)
		return entry, nil
	})
	if shared {
		atomic.AddInt64(&c.shared, 1)
	}
	if err != nil {
		return nil, err
	}
	return v.(*page.Entry), nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Keys returns the cached source paths in sorted order.
func (c *Cache) Keys() []string {
	c.mutex.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mutex.RUnlock()

	sort.Strings(keys)
	return keys
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Sets:    atomic.LoadInt64(&c.sets),
		Shared:  atomic.LoadInt64(&c.shared),
	}
}
