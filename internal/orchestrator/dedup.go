package orchestrator

import "sync"

// dedupCache remembers recently seen message IDs so a feed page served twice
// is not handled twice. Bounded FIFO: when full, the oldest entry is evicted.
type dedupCache struct {
	mu    sync.Mutex
	cap   int
	set   map[string]struct{}
	order []string
}

func newDedupCache(capacity int) *dedupCache {
	return &dedupCache{
		cap: capacity,
		set: make(map[string]struct{}, capacity),
	}
}

// markSeen records id and reports whether it was already present.
func (c *dedupCache) markSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.set[id]; ok {
		return true
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.set, oldest)
	}
	c.set[id] = struct{}{}
	c.order = append(c.order, id)
	return false
}
