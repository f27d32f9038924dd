// Package clock supplies the logical time used on every time-stamped
// field. The core never computes time itself: each operation reads the
// clock exactly once at entry and stamps all of its writes with that
// value.
package clock

import (
	"sync"
	"time"
)

// Clock yields a monotonically non-decreasing logical time.
type Clock interface {
	Now() int64
}

// UnixClock is the production clock: wall seconds, guarded so the value
// never goes backwards across NTP steps.
type UnixClock struct {
	mu   sync.Mutex
	last int64
}

func NewUnixClock() *UnixClock {
	return &UnixClock{}
}

func (c *UnixClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().Unix()
	if now < c.last {
		now = c.last
	}
	c.last = now
	return now
}

// ManualClock is a settable clock for tests and deterministic replay.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock forward. Attempts to move it backwards are ignored
// to preserve monotonicity.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance adds d to the current time.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}
