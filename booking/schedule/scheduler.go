package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hspbot/hspbot/booking/events"
	"github.com/hspbot/hspbot/booking/window"
	"github.com/hspbot/hspbot/errors"
)

// Scheduler orchestrates booking jobs: validates requests, persists records,
// arms wake-up timers, launches executors, and recovers persisted jobs after
// a restart. Timer handles live only in memory; a restart re-arms them from
// the store.
type Scheduler struct {
	store      *Store
	executor   *Executor
	events     *events.Broadcaster
	clock      Clock
	openOffset time.Duration
	log        *zap.SugaredLogger

	mu      sync.Mutex
	timers  map[string]Timer
	running map[string]context.CancelFunc
	wg      sync.WaitGroup

	baseCtx  context.Context
	shutdown context.CancelFunc
}

// NewScheduler creates a scheduler. openOffset is how long before course
// start registration opens; zero selects the default venue policy.
func NewScheduler(store *Store, executor *Executor, broadcaster *events.Broadcaster, clock Clock, openOffset time.Duration, log *zap.SugaredLogger) *Scheduler {
	if openOffset <= 0 {
		openOffset = window.DefaultOpenOffset
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:      store,
		executor:   executor,
		events:     broadcaster,
		clock:      clock,
		openOffset: openOffset,
		log:        log,
		timers:     make(map[string]Timer),
		running:    make(map[string]context.CancelFunc),
		baseCtx:    ctx,
		shutdown:   cancel,
	}
}

// ScheduleBooking validates and persists a new job, then either starts
// polling immediately (already inside the window) or arms a timer for the
// window start.
func (s *Scheduler) ScheduleBooking(bookingID int64, courseStart time.Time, description string) (*Job, error) {
	now := s.clock.Now()
	w := window.Compute(courseStart, s.openOffset)

	if w.Expired(now) {
		return nil, errors.Wrapf(errors.ErrWindowExpired,
			"booking %d: window closed at %s", bookingID, w.PollingStopAt.Format(time.RFC3339))
	}

	job := &Job{
		ID:                 NewJobID(bookingID, now),
		BookingID:          bookingID,
		Description:        description,
		CourseStartTime:    courseStart,
		BookingAvailableAt: w.BookingAvailableAt,
		PollingStartAt:     w.PollingStartAt,
		PollingStopAt:      w.PollingStopAt,
		Status:             StatusPending,
		CreatedAt:          now,
	}
	// Duplicate detection and the insert must be one atomic store operation:
	// a separate find-then-upsert would let two concurrent requests for the
	// same booking both pass validation.
	if err := s.store.InsertPending(job); err != nil {
		return nil, err
	}

	s.log.Infow("Booking scheduled",
		"job_id", job.ID,
		"booking_id", bookingID,
		"booking_available_at", w.BookingAvailableAt,
		"polling_start_at", w.PollingStartAt)

	s.arm(job)
	return job, nil
}

// Preview derives the window for a course start time without creating a job
func (s *Scheduler) Preview(courseStart time.Time) window.Window {
	return window.Compute(courseStart, s.openOffset)
}

// Jobs lists the persisted jobs within retention
func (s *Scheduler) Jobs() ([]*Job, error) {
	return s.store.List()
}

// arm starts the job now if its window is open, or registers a timer for
// the persisted polling start otherwise
func (s *Scheduler) arm(job *Job) {
	now := s.clock.Now()
	if !now.Before(job.PollingStartAt) {
		s.startJob(job)
		return
	}

	delay := job.PollingStartAt.Sub(now)
	s.mu.Lock()
	s.timers[job.ID] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, job.ID)
		s.mu.Unlock()
		s.startJob(job)
	})
	s.mu.Unlock()

	s.log.Infow("Timer armed", "job_id", job.ID, "fires_in", delay)
}

// startJob launches the polling executor for a scheduled job
func (s *Scheduler) startJob(job *Job) {
	ctx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	if _, alreadyRunning := s.running[job.ID]; alreadyRunning {
		s.mu.Unlock()
		cancel()
		return
	}
	s.running[job.ID] = cancel
	s.mu.Unlock()

	if err := s.store.UpdateStatus(job.ID, StatusRunning, "polling started"); err != nil {
		s.log.Errorw("Failed to mark job running", "job_id", job.ID, "error", err)
	}
	s.events.Publish(events.Event{
		Kind:      events.KindScheduleTriggered,
		JobID:     job.ID,
		BookingID: job.BookingID,
		Message:   "polling window open",
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, job.ID)
			s.mu.Unlock()
			cancel()
		}()

		outcome := s.executor.Run(ctx, job)
		s.log.Infow("Job finished",
			"job_id", job.ID,
			"status", outcome.Status,
			"attempts", outcome.Attempts,
			"message", outcome.Message)
	}()
}

// Cancel stops a job wherever it is in its lifecycle: disarms the timer,
// stops a running executor, and removes the record. Cancelling twice, or
// cancelling an already-fired timer, is a no-op.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	timer, hadTimer := s.timers[jobID]
	delete(s.timers, jobID)
	cancelRun, wasRunning := s.running[jobID]
	s.mu.Unlock()

	if hadTimer {
		timer.Stop()
	}
	if wasRunning {
		cancelRun()
	}

	err := s.store.Remove(jobID)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			return err
		}
		// Manual polling jobs have no store record
		if !hadTimer && !wasRunning {
			return err
		}
	}

	s.events.Publish(events.Event{
		Kind:    events.KindJobStopped,
		JobID:   jobID,
		Message: "cancelled",
	})
	s.log.Infow("Job cancelled", "job_id", jobID, "was_running", wasRunning)
	return nil
}

// Recover reconciles persisted jobs after a restart: jobs whose window
// fully elapsed are marked missed, jobs inside their window start
// immediately, and future jobs get their timer re-armed against the
// persisted polling start (jitter is never redrawn).
func (s *Scheduler) Recover() error {
	jobs, err := s.store.List()
	if err != nil {
		return errors.Wrap(err, "failed to load jobs for recovery")
	}

	now := s.clock.Now()
	recovered := 0
	for _, job := range jobs {
		// A job persisted as running means the process died mid-loop;
		// treat it like pending and let the window decide.
		if job.Status != StatusPending && job.Status != StatusRunning {
			continue
		}

		if job.Window().Expired(now) {
			if err := s.store.UpdateStatus(job.ID, StatusMissed, "window elapsed while process was down"); err != nil {
				s.log.Errorw("Failed to mark job missed", "job_id", job.ID, "error", err)
			}
			s.log.Warnw("Job missed its window", "job_id", job.ID, "polling_stop_at", job.PollingStopAt)
			continue
		}

		if job.Status == StatusRunning {
			if err := s.store.UpdateStatus(job.ID, StatusPending, "recovered after restart"); err != nil {
				s.log.Errorw("Failed to reset job status", "job_id", job.ID, "error", err)
			}
			job.Status = StatusPending
		}

		s.arm(job)
		recovered++
	}

	s.log.Infow("Recovery complete", "jobs_seen", len(jobs), "rearmed", recovered)
	return nil
}

// StartManualPolling launches a caller-driven polling loop outside any
// window: custom interval, optional attempt cap, nothing persisted.
// Returns the ephemeral job ID used in events.
func (s *Scheduler) StartManualPolling(bookingID int64, interval time.Duration, maxAttempts int) (string, error) {
	if bookingID <= 0 {
		return "", errors.NewInvalidRequestError("booking id required")
	}

	now := s.clock.Now()
	jobID := fmt.Sprintf("%d-%d", bookingID, now.UnixMilli())

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	s.running[jobID] = cancel
	s.mu.Unlock()

	s.events.Publish(events.Event{
		Kind:      events.KindJobStarted,
		JobID:     jobID,
		BookingID: bookingID,
		Message:   "polling started",
	})
	s.log.Infow("Manual polling started",
		"job_id", jobID,
		"booking_id", bookingID,
		"interval", interval,
		"max_attempts", maxAttempts)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, jobID)
			s.mu.Unlock()
			cancel()
		}()

		outcome := s.executor.RunManual(ctx, jobID, bookingID, interval, maxAttempts)
		s.events.Publish(events.Event{
			Kind:          events.KindJobStopped,
			JobID:         jobID,
			BookingID:     bookingID,
			Success:       outcome.Status == StatusCompleted,
			Message:       outcome.Message,
			TotalAttempts: outcome.Attempts,
		})
	}()

	return jobID, nil
}

// ActiveCount returns how many executors are currently looping
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown disarms every timer, cancels every running executor, and waits
// for the loops to drain. Armed timers must not fire after shutdown against
// a stale job table.
func (s *Scheduler) Shutdown() {
	s.shutdown()

	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	cancels := make([]context.CancelFunc, 0, len(s.running))
	for _, cancel := range s.running {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	s.log.Infow("Scheduler stopped")
}
