package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hspbot/hspbot/booking/events"
)

// RegisterCmd attempts registrations outside any scheduled window
var RegisterCmd = &cobra.Command{
	Use:   "register <bookingId>",
	Short: "Attempt a registration right now",
	Long: `Submit a registration attempt for a booking immediately. With --poll the
attempt repeats at the given interval until it succeeds, the attempt cap is
reached, or the process is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var (
	registerPoll        bool
	registerIntervalMS  int
	registerMaxAttempts int
)

func init() {
	RegisterCmd.Flags().BoolVar(&registerPoll, "poll", false, "Keep retrying at --interval until confirmed")
	RegisterCmd.Flags().IntVar(&registerIntervalMS, "interval", 1000, "Polling interval in milliseconds")
	RegisterCmd.Flags().IntVar(&registerMaxAttempts, "max-attempts", 0, "Stop after this many attempts (0 = unlimited)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	bookingID, err := parseBookingID(args[0])
	if err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.scheduler.Shutdown()

	ctx := cmd.Context()

	if !registerPoll {
		return registerOnce(ctx, a, bookingID)
	}

	jobID, err := a.scheduler.StartManualPolling(bookingID,
		time.Duration(registerIntervalMS)*time.Millisecond, registerMaxAttempts)
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Polling as job %s, Ctrl+C to stop", jobID)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The polling loop announces its end with a jobStopped event
	done := make(chan struct{}, 1)
	a.events.Subscribe(listenerFunc(func(ev events.Event) {
		if ev.Kind == events.KindJobStopped && ev.JobID == jobID {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}))

	select {
	case <-sigCtx.Done():
	case <-done:
	}
	return nil
}

// listenerFunc adapts a function to the events.Listener interface
type listenerFunc func(events.Event)

func (f listenerFunc) Deliver(ev events.Event) { f(ev) }

func registerOnce(ctx context.Context, a *app, bookingID int64) error {
	cred, err := a.auth.ValidCredential(ctx)
	if err != nil {
		return err
	}
	memberID, _, _ := cred.MemberInfo()

	result, err := a.api.Register(ctx, cred.AccessToken, memberID, bookingID)
	if err != nil {
		return err
	}

	switch {
	case result.Success:
		pterm.Success.Printfln("Registered for booking %d (participation %d, claim code %s)",
			bookingID, result.ParticipationID, result.ClaimCode)
	case result.IsWaitlist:
		pterm.Warning.Printfln("Placed on waitlist (participation %d)", result.ParticipationID)
	case result.AlreadyRegistered:
		pterm.Warning.Printfln("Already registered: %s", result.Message)
	case result.RateLimited:
		pterm.Warning.Printfln("Rate limited, retry after %s", result.RetryAfter)
	default:
		pterm.Error.Printfln("Registration failed (%d): %s", result.StatusCode, result.Message)
	}
	return nil
}
