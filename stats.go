package tagpool

import "sync/atomic"

// counters holds the atomic operation counters backing Stats/Observable,
// following the teacher's drivers/redis atomic-counter pattern.
type counters struct {
	hits        int64
	misses      int64
	saves       int64
	deletes     int64
	invalidates int64
	errors      int64
}

func (c *counters) recordHit()        { atomic.AddInt64(&c.hits, 1) }
func (c *counters) recordMiss()       { atomic.AddInt64(&c.misses, 1) }
func (c *counters) recordSave()       { atomic.AddInt64(&c.saves, 1) }
func (c *counters) recordDelete()     { atomic.AddInt64(&c.deletes, 1) }
func (c *counters) recordInvalidate() { atomic.AddInt64(&c.invalidates, 1) }
func (c *counters) recordError()      { atomic.AddInt64(&c.errors, 1) }

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:        atomic.LoadInt64(&c.hits),
		Misses:      atomic.LoadInt64(&c.misses),
		Saves:       atomic.LoadInt64(&c.saves),
		Deletes:     atomic.LoadInt64(&c.deletes),
		Invalidates: atomic.LoadInt64(&c.invalidates),
		Errors:      atomic.LoadInt64(&c.errors),
	}
}
