package gmail

// seenCache is a fixed-capacity set of message IDs with FIFO eviction,
// used to avoid re-ingesting messages the poller already handed off.
// The dedup index in storage is the real guarantee; this just saves the
// round trips.
type seenCache struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newSeenCache(capacity int) *seenCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &seenCache{
		capacity: capacity,
		members:  make(map[string]struct{}, capacity),
	}
}

func (c *seenCache) Contains(id string) bool {
	_, ok := c.members[id]
	return ok
}

// Add inserts the id, evicting the oldest entry when full. Adding an
// existing id is a no-op.
func (c *seenCache) Add(id string) {
	if c.Contains(id) {
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.members, oldest)
	}
	c.order = append(c.order, id)
	c.members[id] = struct{}{}
}

func (c *seenCache) Len() int {
	return len(c.order)
}
