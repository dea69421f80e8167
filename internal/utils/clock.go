package utils

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock so that timed loops can be single stepped.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// ManualClock only moves when Advance is called. Every call to After is
// announced on Waiting, which lets a test know a loop is parked on a timer.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []chan time.Time
	waiting chan struct{}
}

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{
		now:     now,
		waiting: make(chan struct{}, 64),
	}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.pending = append(c.pending, ch)
	c.mu.Unlock()
	select {
	case c.waiting <- struct{}{}:
	default:
	}
	return ch
}

// Waiting receives once per After call.
func (c *ManualClock) Waiting() <-chan struct{} {
	return c.waiting
}

// Pending is the number of After channels not yet fired.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Advance moves the clock forward by d and fires every pending timer,
// regardless of its duration.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- now
	}
}
