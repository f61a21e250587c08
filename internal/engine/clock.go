package engine

import (
	"sync/atomic"
	"time"

	"github.com/roach88/chronicle/internal/ir"
)

// Clock issues stamp times for edits.
//
// Times are epoch milliseconds and strictly increasing across calls, even
// when the wall clock stalls or steps back. Imported stamps are observed so
// that a later edit always sorts after every version already in the store.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	now  func() int64
	last atomic.Int64
}

// NewClock creates a wall-clock backed clock.
func NewClock() *Clock {
	return &Clock{now: func() int64 { return time.Now().UnixMilli() }}
}

// NewClockAt creates a logical clock that ignores wall time. The first call
// to Next returns start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{now: func() int64 { return 0 }}
	c.last.Store(start)
	return c
}

// Next returns the next stamp time.
func (c *Clock) Next() int64 {
	for {
		last := c.last.Load()
		next := max(c.now(), last+1)
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Current returns the last issued or observed time without advancing.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

// Observe moves the clock to at least t. TimeLatest is ignored.
func (c *Clock) Observe(t int64) {
	if t == ir.TimeLatest {
		return
	}
	for {
		last := c.last.Load()
		if t <= last || c.last.CompareAndSwap(last, t) {
			return
		}
	}
}
