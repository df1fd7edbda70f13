package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hspbot/hspbot/auth"
	"github.com/hspbot/hspbot/booking/events"
	"github.com/hspbot/hspbot/errors"
	"github.com/hspbot/hspbot/hsp"
)

// DefaultPollInterval is the inter-attempt delay for unattended scheduled jobs
const DefaultPollInterval = 500 * time.Millisecond

// CredentialSource hands out a credential valid for at least the safety
// margin, refreshing it first if needed
type CredentialSource interface {
	ValidCredential(ctx context.Context) (*auth.Credential, error)
}

// Registrar submits a single registration attempt
type Registrar interface {
	Register(ctx context.Context, accessToken string, memberID, bookingID int64) (*hsp.RegisterResult, error)
}

// Outcome is the terminal result of one executor run
type Outcome struct {
	Status   Status
	Message  string
	Attempts int
	Result   *hsp.RegisterResult
}

// Executor runs the attempt loop for one job at a time. One instance is
// shared across jobs; each Run is an independent loop and attempts within a
// run are strictly sequential.
type Executor struct {
	creds     CredentialSource
	registrar Registrar
	store     *Store
	events    *events.Broadcaster
	clock     Clock
	interval  time.Duration
	log       *zap.SugaredLogger
}

// NewExecutor creates a polling executor. interval is the scheduled-job
// attempt spacing; zero selects the default 500ms.
func NewExecutor(creds CredentialSource, registrar Registrar, store *Store, broadcaster *events.Broadcaster, clock Clock, interval time.Duration, log *zap.SugaredLogger) *Executor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Executor{
		creds:     creds,
		registrar: registrar,
		store:     store,
		events:    broadcaster,
		clock:     clock,
		interval:  interval,
		log:       log,
	}
}

// Run executes the attempt loop for a scheduled job until success, window
// expiry, or cancellation, persisting the terminal status. Per-attempt
// errors never escape the loop.
func (e *Executor) Run(ctx context.Context, job *Job) Outcome {
	outcome := e.loop(ctx, job.ID, job.BookingID, e.interval, 0, job.PollingStopAt)

	// A cancelled run is persisted by whoever cancelled it; the record may
	// already be gone from the store.
	if outcome.Status != StatusCancelled {
		if err := e.store.UpdateStatus(job.ID, outcome.Status, outcome.Message); err != nil {
			e.log.Errorw("Failed to persist job outcome", "job_id", job.ID, "error", err)
		}
	}
	return outcome
}

// RunManual executes a caller-triggered polling loop: custom interval,
// optional attempt cap, no window bound, nothing persisted.
func (e *Executor) RunManual(ctx context.Context, jobID string, bookingID int64, interval time.Duration, maxAttempts int) Outcome {
	if interval <= 0 {
		interval = e.interval
	}
	return e.loop(ctx, jobID, bookingID, interval, maxAttempts, time.Time{})
}

// loop is the shared attempt loop. stopAt zero means no time bound;
// maxAttempts zero means no attempt cap.
func (e *Executor) loop(ctx context.Context, jobID string, bookingID int64, interval time.Duration, maxAttempts int, stopAt time.Time) Outcome {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return Outcome{Status: StatusCancelled, Message: "cancelled", Attempts: attempt}
		}
		if !stopAt.IsZero() && !e.clock.Now().Before(stopAt) {
			break
		}

		attempt++
		if outcome, done := e.attempt(ctx, jobID, bookingID, attempt); done {
			return outcome
		}

		if maxAttempts > 0 && attempt >= maxAttempts {
			msg := "max attempts reached"
			e.publish(events.Event{
				Kind:          events.KindScheduleError,
				JobID:         jobID,
				BookingID:     bookingID,
				Message:       msg,
				TotalAttempts: attempt,
			})
			return Outcome{Status: StatusFailed, Message: msg, Attempts: attempt}
		}

		select {
		case <-ctx.Done():
			return Outcome{Status: StatusCancelled, Message: "cancelled", Attempts: attempt}
		case <-e.clock.After(interval):
		}
	}

	msg := "window expired without successful registration"
	e.publish(events.Event{
		Kind:          events.KindScheduleError,
		JobID:         jobID,
		BookingID:     bookingID,
		Message:       msg,
		TotalAttempts: attempt,
	})
	return Outcome{Status: StatusFailed, Message: msg, Attempts: attempt}
}

// attempt performs one credential fetch plus registration call and reports
// whether the loop should end. Auth failures, rate limits, waitlist
// placements and transport errors all continue the loop; only a confirmed
// registration or a 403 refusal end it.
func (e *Executor) attempt(ctx context.Context, jobID string, bookingID int64, attempt int) (Outcome, bool) {
	cred, err := e.creds.ValidCredential(ctx)
	if err != nil {
		e.log.Warnw("No valid credential for attempt",
			"job_id", jobID, "attempt", attempt, "error", err)
		e.publish(events.Event{
			Kind:      events.KindScheduleAttempt,
			JobID:     jobID,
			BookingID: bookingID,
			Attempt:   attempt,
			Message:   "authentication failed: " + err.Error(),
		})
		return Outcome{}, false
	}

	memberID, _, _ := cred.MemberInfo()
	if memberID == 0 {
		e.publish(events.Event{
			Kind:      events.KindScheduleAttempt,
			JobID:     jobID,
			BookingID: bookingID,
			Attempt:   attempt,
			Message:   "credential carries no member id",
		})
		return Outcome{}, false
	}

	result, err := e.registrar.Register(ctx, cred.AccessToken, memberID, bookingID)
	if err != nil {
		// A cancelled context surfaces as a transport error mid-request;
		// the loop head turns it into a cancelled outcome.
		if ctx.Err() == nil {
			e.log.Warnw("Registration attempt failed",
				"job_id", jobID, "attempt", attempt, "error", err)
			e.publish(events.Event{
				Kind:      events.KindScheduleAttempt,
				JobID:     jobID,
				BookingID: bookingID,
				Attempt:   attempt,
				Message:   err.Error(),
			})
		}
		return Outcome{}, false
	}

	switch {
	case result.Success:
		e.log.Infow("Registration confirmed",
			"job_id", jobID,
			"booking_id", bookingID,
			"participation_id", result.ParticipationID,
			"claim_code", result.ClaimCode,
			"attempts", attempt)
		e.publish(events.Event{
			Kind:          events.KindScheduleCompleted,
			JobID:         jobID,
			BookingID:     bookingID,
			Attempt:       attempt,
			Success:       true,
			Status:        result.StatusCode,
			TotalAttempts: attempt,
		})
		return Outcome{Status: StatusCompleted, Message: "registration confirmed", Attempts: attempt, Result: result}, true

	case result.AlreadyRegistered:
		msg := result.Message
		if msg == "" {
			msg = errors.ErrAlreadyRegistered.Error()
		}
		e.publish(events.Event{
			Kind:          events.KindScheduleError,
			JobID:         jobID,
			BookingID:     bookingID,
			Attempt:       attempt,
			Status:        result.StatusCode,
			Message:       msg,
			TotalAttempts: attempt,
		})
		return Outcome{Status: StatusFailed, Message: msg, Attempts: attempt, Result: result}, true

	case result.IsWaitlist:
		// A waitlist place is not the race won; keep attempting in case a
		// confirmed slot opens.
		e.publish(events.Event{
			Kind:       events.KindScheduleAttempt,
			JobID:      jobID,
			BookingID:  bookingID,
			Attempt:    attempt,
			IsWaitlist: true,
			Status:     result.StatusCode,
			Message:    result.Message,
		})
		return Outcome{}, false

	case result.RateLimited:
		e.log.Debugw("Rate limited",
			"job_id", jobID, "attempt", attempt, "retry_after", result.RetryAfter)
		e.publish(events.Event{
			Kind:        events.KindScheduleAttempt,
			JobID:       jobID,
			BookingID:   bookingID,
			Attempt:     attempt,
			RateLimited: true,
			Status:      result.StatusCode,
			Message:     result.Message,
		})
		return Outcome{}, false

	default:
		e.publish(events.Event{
			Kind:      events.KindScheduleAttempt,
			JobID:     jobID,
			BookingID: bookingID,
			Attempt:   attempt,
			Status:    result.StatusCode,
			Message:   result.Message,
		})
		return Outcome{}, false
	}
}

func (e *Executor) publish(ev events.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}
