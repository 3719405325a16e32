package compose

import "sync/atomic"

// Clock numbers passes. A recomposer shares one clock between its
// compositions, so sequence numbers order passes across all of them.
type Clock struct {
	last atomic.Int64
}

// NewClock creates a clock whose first pass is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the sequence number of a new pass.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Advance moves the clock past seq, typically the highest sequence found in
// a pass log. The clock never moves backwards.
func (c *Clock) Advance(seq int64) {
	for {
		cur := c.last.Load()
		if seq <= cur || c.last.CompareAndSwap(cur, seq) {
			return
		}
	}
}
