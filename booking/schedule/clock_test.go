package schedule

import (
	"sync"
	"time"
)

// testClock is a manually driven clock. After advances the clock by the
// requested duration and fires immediately, so executor loops run without
// real sleeping while still observing time moving past their window bound.
type testClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*testTimer
}

type testTimer struct {
	clock    *testClock
	deadline time.Time
	f        func()
	fired    bool
	stopped  bool
}

func newTestClock(now time.Time) *testClock {
	return &testClock{current: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *testClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &testTimer{clock: c, deadline: c.current.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires due timers
func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	var due []*testTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && !t.deadline.After(c.current) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// armedTimers counts timers that are neither fired nor stopped
func (c *testClock) armedTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (t *testTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
