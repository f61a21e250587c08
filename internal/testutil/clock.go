package testutil

import "sync"

// StampClock hands out stamp times for fixtures: start, start+step,
// start+2*step, ...
//
// Unlike engine.Clock, StampClock can be reset for test reuse, so the same
// fixture built twice carries identical stamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StampClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	next  int64
}

// NewStampClock creates a clock whose first Next() returns start. A
// non-positive step is treated as 1.
func NewStampClock(start, step int64) *StampClock {
	if step <= 0 {
		step = 1
	}
	return &StampClock{start: start, step: step, next: start}
}

// Next returns the next time and advances the clock by one step.
func (c *StampClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next += c.step
	return t
}

// Current returns the last time handed out, or start-step before the
// first Next().
func (c *StampClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next - c.step
}

// Reset rewinds the clock so the next call to Next() returns start.
func (c *StampClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
