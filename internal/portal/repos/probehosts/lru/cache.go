package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-portal/internal/portal/repos/probehosts"
)

// decisionCache is an LRU-backed implementation of probehosts.DecisionCache.
// It tracks hits, misses and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, bool]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled cache is returned that always misses.
func New(size int) (probehosts.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	dc := &decisionCache{capacity: size}
	// NewWithEvict also observes Purge-induced evictions.
	cache, err := lru.NewWithEvict(size, func(_ string, _ bool) {
		dc.evictions++
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

// Get looks up a decision by canonical name.
func (c *decisionCache) Get(name string) (bool, bool) {
	if val, ok := c.lru.Get(name); ok {
		c.hits++
		return val, true
	}
	c.misses++
	return false, false
}

// Put stores a decision by canonical name.
func (c *decisionCache) Put(name string, match bool) {
	c.lru.Add(name, match)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() probehosts.CacheStats {
	return probehosts.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (d *disabledCache) Get(string) (bool, bool) { return false, false }

func (d *disabledCache) Put(string, bool) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() probehosts.CacheStats { return probehosts.CacheStats{} }

var _ probehosts.DecisionCache = (*decisionCache)(nil)
var _ probehosts.DecisionCache = (*disabledCache)(nil)
