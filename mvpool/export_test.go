package mvpool

import "time"

// SetNow overrides the clock used to stamp new snapshots.
func (c *Cache) SetNow(now func() time.Time) {
	c.now = now
}
