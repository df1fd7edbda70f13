// Package window derives the booking-open instant and polling window from a
// course start time. Pure computation, no I/O; the only non-determinism is the
// jitter draw at schedule time.
package window

import (
	"math/rand/v2"
	"time"
)

const (
	// DefaultOpenOffset is how long before course start registration opens.
	// Venue policy, not derived from any data source; override via config
	// booking.open_offset_days if the venue changes it.
	DefaultOpenOffset = 6 * 24 * time.Hour

	// pollLead is how long before the booking-open instant polling begins
	pollLead = 60 * time.Second

	// jitterMaxSeconds bounds the random offset added to the polling start,
	// so concurrent bots don't all wake at the exact same instant
	jitterMaxSeconds = 10

	// pollGrace is how long after the booking-open instant polling continues
	pollGrace = 20 * time.Second
)

// Window is the bounded time range during which registration attempts are made
type Window struct {
	BookingAvailableAt time.Time `json:"bookingAvailableAt"`
	PollingStartAt     time.Time `json:"pollingStartAt"`
	PollingStopAt      time.Time `json:"pollingStopAt"`
}

// BookingAvailableAt returns the instant registration opens for a course
func BookingAvailableAt(courseStart time.Time, openOffset time.Duration) time.Time {
	return courseStart.Add(-openOffset)
}

// PollingStopAt returns the instant polling gives up
func PollingStopAt(bookingAvailableAt time.Time) time.Time {
	return bookingAvailableAt.Add(pollGrace)
}

// Compute derives the full polling window for a course start time.
// The jitter is drawn once here; recovery after restart must reuse the
// persisted window rather than calling Compute again.
func Compute(courseStart time.Time, openOffset time.Duration) Window {
	available := BookingAvailableAt(courseStart, openOffset)
	jitter := time.Duration(rand.IntN(jitterMaxSeconds)) * time.Second
	return Window{
		BookingAvailableAt: available,
		PollingStartAt:     available.Add(-pollLead).Add(jitter),
		PollingStopAt:      PollingStopAt(available),
	}
}

// Expired reports whether the window has fully elapsed at the given instant
func (w Window) Expired(now time.Time) bool {
	return now.After(w.PollingStopAt)
}

// Contains reports whether the given instant is inside [PollingStartAt, PollingStopAt)
func (w Window) Contains(now time.Time) bool {
	return !now.Before(w.PollingStartAt) && now.Before(w.PollingStopAt)
}
