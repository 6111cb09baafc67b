package pipeline

import "sync/atomic"

// JobCounter counts successfully converted items of one batch. It is only
// read for progress reporting.
type JobCounter struct {
	n atomic.Int64
}

func (c *JobCounter) Reset() {
	c.n.Store(0)
}

func (c *JobCounter) IncrementAndGet() int64 {
	return c.n.Add(1)
}

func (c *JobCounter) Load() int64 {
	return c.n.Load()
}
