package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hspbot/hspbot/errors"
)

// ScheduleCmd manages scheduled booking jobs
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled booking jobs",
	Long: `Schedule booking jobs ahead of the registration window, list them,
preview the derived window, or cancel them.

The bot wakes up shortly before registration opens and polls the
registration endpoint until it wins a slot or the window closes. Scheduled
jobs survive restarts; run 'hspbot serve' so their timers are armed.`,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <bookingId> <courseStartTime>",
	Short: "Schedule a booking job (courseStartTime in RFC3339)",
	Args:  cobra.ExactArgs(2),
	RunE:  runScheduleAdd,
}

var scheduleAddDescription string

var scheduleLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List scheduled jobs",
	RunE:    runScheduleLs,
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel <jobId>",
	Short: "Cancel a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleCancel,
}

var schedulePreviewCmd = &cobra.Command{
	Use:   "preview <courseStartTime>",
	Short: "Show the window a course start time derives to",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulePreview,
}

func init() {
	scheduleAddCmd.Flags().StringVar(&scheduleAddDescription, "description", "", "Human-readable job description")
	ScheduleCmd.AddCommand(scheduleAddCmd)
	ScheduleCmd.AddCommand(scheduleLsCmd)
	ScheduleCmd.AddCommand(scheduleCancelCmd)
	ScheduleCmd.AddCommand(schedulePreviewCmd)
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	bookingID, err := parseBookingID(args[0])
	if err != nil {
		return err
	}
	courseStart, err := time.Parse(time.RFC3339, args[1])
	if err != nil {
		return errors.Wrapf(err, "courseStartTime must be RFC3339, e.g. 2024-06-10T19:00:00Z")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.scheduler.Shutdown()

	job, err := a.scheduler.ScheduleBooking(bookingID, courseStart, scheduleAddDescription)
	if err != nil {
		return err
	}

	pterm.Success.Printfln("Scheduled %s", job.ID)
	fmt.Printf("  Booking opens:  %s\n", job.BookingAvailableAt.Local().Format(time.RFC1123))
	fmt.Printf("  Polling starts: %s\n", job.PollingStartAt.Local().Format(time.RFC1123))
	fmt.Printf("  Polling stops:  %s\n", job.PollingStopAt.Local().Format(time.RFC1123))
	fmt.Println("\nRun 'hspbot serve' to keep the timer armed.")
	return nil
}

func runScheduleLs(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	jobs, err := a.store.List()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No scheduled jobs")
		return nil
	}

	rows := pterm.TableData{{"ID", "Booking", "Status", "Polling starts", "Description"}}
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			fmt.Sprintf("%d", job.BookingID),
			string(job.Status),
			job.PollingStartAt.Local().Format("2006-01-02 15:04:05"),
			job.Description,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runScheduleCancel(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.scheduler.Shutdown()

	if err := a.scheduler.Cancel(args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("Cancelled %s", args[0])
	return nil
}

func runSchedulePreview(cmd *cobra.Command, args []string) error {
	courseStart, err := time.Parse(time.RFC3339, args[0])
	if err != nil {
		return errors.Wrapf(err, "courseStartTime must be RFC3339")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}

	w := a.scheduler.Preview(courseStart)
	fmt.Printf("Course start:    %s\n", courseStart.Local().Format(time.RFC1123))
	fmt.Printf("Booking opens:   %s\n", w.BookingAvailableAt.Local().Format(time.RFC1123))
	fmt.Printf("Polling starts:  %s\n", w.PollingStartAt.Local().Format(time.RFC1123))
	fmt.Printf("Polling stops:   %s\n", w.PollingStopAt.Local().Format(time.RFC1123))
	if w.Expired(time.Now()) {
		pterm.Warning.Println("Window already expired")
	}
	return nil
}

func parseBookingID(raw string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil || id <= 0 {
		return 0, errors.NewInvalidRequestError("bookingId must be a positive number, got %q", raw)
	}
	return id, nil
}
