package schedule

import "time"

// Timer is a cancellable armed wake-up. Stop is idempotent; stopping an
// already-fired timer is a no-op.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so the scheduler and executor can be driven by a
// manual clock in tests instead of sleeping in real time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// NewClock returns the wall clock
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
