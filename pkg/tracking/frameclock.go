package tracking

import (
	"time"

	"golang.org/x/time/rate"
)

// FrameClock decides whether the current video frame is new and should be
// sent to the detector. It is used from a single goroutine.
type FrameClock struct {
	last    float64
	limiter *rate.Limiter
	now     func() time.Time
}

// NewFrameClock creates a clock. maxRate > 0 additionally caps how many
// frames per second are accepted.
func NewFrameClock(maxRate float64) *FrameClock {
	c := &FrameClock{last: -1, now: time.Now}
	if maxRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(maxRate), 1)
	}
	return c
}

// ShouldSample reports whether videoTimestamp differs from the last sampled
// timestamp, and records it if so. A frame refused by the rate cap is not
// recorded, so it is offered again on the next poll.
func (c *FrameClock) ShouldSample(videoTimestamp float64) bool {
	if videoTimestamp == c.last {
		return false
	}
	if c.limiter != nil && !c.limiter.AllowN(c.now(), 1) {
		return false
	}
	c.last = videoTimestamp
	return true
}

// Last returns the last sampled timestamp, or -1 before the first frame.
func (c *FrameClock) Last() float64 {
	return c.last
}
