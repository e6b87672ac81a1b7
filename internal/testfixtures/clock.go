package testfixtures

import (
	"sync/atomic"
	"time"
)

// Clock is a manually driven time source that is safe to read from many
// goroutines while a test moves it.
type Clock struct {
	nanos atomic.Int64
}

// NewClock returns a clock set to start, or to ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	c := &Clock{}
	c.Set(start)
	return c
}

// Now returns the clock's current instant in UTC.
func (c *Clock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).UTC()
}

// NowFunc returns Now for injection, or time.Now for a nil clock.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.nanos.Store(t.UnixNano())
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	return time.Unix(0, c.nanos.Add(int64(d))).UTC()
}
