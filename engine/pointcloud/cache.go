package pointcloud

// cacheMaxEntries bounds the per-processor result cache.
const cacheMaxEntries = 20

// resultCache is a bounded FIFO cache of processed chunk responses keyed
// by hash(chunk identity, serialized options). Entries are immutable once
// inserted; overflow evicts the oldest insertion. Each worker owns its own
// instance, so no locking is needed.
type resultCache struct {
	max     int
	entries map[uint64]*Response
	order   []uint64
}

func newResultCache(max int) *resultCache {
	return &resultCache{
		max:     max,
		entries: make(map[uint64]*Response, max),
	}
}

func (c *resultCache) get(key uint64) (*Response, bool) {
	resp, ok := c.entries[key]
	return resp, ok
}

func (c *resultCache) put(key uint64, resp *Response) {
	if _, ok := c.entries[key]; ok {
		// Entries are immutable; keep the original insertion.
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = resp
	c.order = append(c.order, key)
}

func (c *resultCache) len() int {
	return len(c.entries)
}

func (c *resultCache) clear() {
	c.entries = make(map[uint64]*Response, c.max)
	c.order = c.order[:0]
}
