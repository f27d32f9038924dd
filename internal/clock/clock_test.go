package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(100)
	assert.Equal(t, int64(100), c.Now())

	c.Set(250)
	assert.Equal(t, int64(250), c.Now())

	// Backwards moves are ignored.
	c.Set(50)
	assert.Equal(t, int64(250), c.Now())

	c.Advance(10)
	assert.Equal(t, int64(260), c.Now())
}

func TestUnixClockNeverDecreases(t *testing.T) {
	c := NewUnixClock()
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		assert.GreaterOrEqual(t, now, prev)
		prev = now
	}
}
