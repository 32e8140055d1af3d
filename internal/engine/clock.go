package engine

import "sync/atomic"

// Clock numbers the state log of a run. Each Next is one higher than the
// last, so stored steps sort in execution order. A resumed run continues
// from the seq its source run stopped at.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first seq is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock whose first seq is after+1.
func NewClockAt(after int64) *Clock {
	c := &Clock{}
	c.seq.Store(after)
	return c
}

// Next returns the next seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
