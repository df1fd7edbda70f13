// Package schedule is the scheduled booking race core: the durable job
// record, the timer-armed scheduler, and the bounded polling executor that
// hammers the registration endpoint inside the job's window.
package schedule

import (
	"fmt"
	"time"

	"github.com/hspbot/hspbot/booking/window"
)

// Status is the lifecycle state of a job. Transitions are monotonic:
// pending -> running -> {completed, failed}, with missed and cancelled
// reachable from pending and cancelled also from running.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusMissed    Status = "missed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// Job is one scheduled attempt to win the registration race for a booking.
// The window fields are derived once at schedule time and never recomputed;
// recovery after a restart reuses the persisted values.
type Job struct {
	ID                 string    `json:"id"`
	BookingID          int64     `json:"bookingId"`
	Description        string    `json:"description,omitempty"`
	CourseStartTime    time.Time `json:"courseStartTime"`
	BookingAvailableAt time.Time `json:"bookingAvailableAt"`
	PollingStartAt     time.Time `json:"pollingStartAt"`
	PollingStopAt      time.Time `json:"pollingStopAt"`
	Status             Status    `json:"status"`
	StatusMessage      string    `json:"statusMessage,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Window reconstructs the persisted polling window
func (j *Job) Window() window.Window {
	return window.Window{
		BookingAvailableAt: j.BookingAvailableAt,
		PollingStartAt:     j.PollingStartAt,
		PollingStopAt:      j.PollingStopAt,
	}
}

// NewJobID derives the job identifier from the booking and creation instant
func NewJobID(bookingID int64, now time.Time) string {
	return fmt.Sprintf("schedule-%d-%d", bookingID, now.UnixMilli())
}
