package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a Clock reports.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a deterministic wall clock for tests. Each call to Now advances
// it by a fixed step, so consecutive timestamps are strictly increasing.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewClock creates a clock whose first Now returns Epoch and that advances
// by step per call. A non-positive step defaults to one second.
func NewClock(step time.Duration) *Clock {
	if step <= 0 {
		step = time.Second
	}
	return &Clock{next: Epoch, step: step}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the instant the next Now will report without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to Epoch.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
