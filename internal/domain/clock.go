package domain

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing timestamps at nanosecond resolution,
// even when the wall clock stalls or steps backwards.
type Clock struct {
	// Now defaults to time.Now.
	Now func() time.Time

	mu   sync.Mutex
	last int64
}

// Next returns a timestamp later than every one returned before.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	n := now().UnixNano()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return time.Unix(0, n).UTC()
}

// Observe makes later timestamps exceed t, e.g. one read back from storage.
func (c *Clock) Observe(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := t.UnixNano(); n > c.last {
		c.last = n
	}
}
