// Package events provides fan-out of booking progress events to subscribed
// listeners, decoupled from any transport. WebSocket connections, CLI
// progress displays and tests all register as Listeners.
package events

import "time"

// Kind identifies the type of a progress event
type Kind string

const (
	KindScheduleTriggered Kind = "scheduleTriggered"
	KindScheduleAttempt   Kind = "scheduleAttempt"
	KindScheduleCompleted Kind = "scheduleCompleted"
	KindScheduleError     Kind = "scheduleError"
	KindJobStarted        Kind = "jobStarted"
	KindJobStopped        Kind = "jobStopped"
)

// Event is one structured progress message.
// The JSON field names match what the web UI consumes.
type Event struct {
	Kind          Kind   `json:"type"`
	JobID         string `json:"jobId,omitempty"`
	BookingID     int64  `json:"bookingId,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
	Success       bool   `json:"success"`
	IsWaitlist    bool   `json:"isWaitlist,omitempty"`
	RateLimited   bool   `json:"rateLimited,omitempty"`
	Status        int    `json:"status,omitempty"`
	Message       string `json:"message,omitempty"`
	TotalAttempts int    `json:"totalAttempts,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Listener receives published events. Deliver must not block: slow consumers
// are expected to buffer or drop on their side of the call.
type Listener interface {
	Deliver(Event)
}

// now is swapped in tests
var now = time.Now
