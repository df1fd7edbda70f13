package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hspbot/hspbot/hsp"
)

// CoursesCmd searches upcoming courses
var CoursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Search upcoming courses",
	Long: `Search the upcoming courses for the configured product, optionally
filtered by level and minimum free slots.`,
	RunE: runCourses,
}

var (
	coursesLevel        int
	coursesMinAvailable int
	coursesDays         int
)

func init() {
	CoursesCmd.Flags().IntVar(&coursesLevel, "level", -1, "Only courses of this level")
	CoursesCmd.Flags().IntVar(&coursesMinAvailable, "min-available", 0, "Only courses with at least this many free slots")
	CoursesCmd.Flags().IntVar(&coursesDays, "days", 8, "Search horizon in days")
}

func runCourses(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	query := hsp.SearchQuery{
		ProductIDs:    []int64{a.cfg.Booking.ProductID},
		EndOffsetDays: coursesDays,
		MinAvailable:  coursesMinAvailable,
	}
	if coursesLevel >= 0 {
		query.Level = coursesLevel
		query.LevelSet = true
	}

	courses, err := a.api.SearchCourses(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(courses) == 0 {
		pterm.Info.Println("No courses match")
		return nil
	}

	rows := pterm.TableData{{"ID", "Start", "Course", "Location", "Free", "Supervisors"}}
	for _, c := range courses {
		free := fmt.Sprintf("%d", c.AvailableParticipantCount)
		if c.AvailableParticipantCount == 0 {
			free = "full"
		}
		names := make([]string, len(c.Supervisors))
		for i, s := range c.Supervisors {
			names[i] = s.FirstName + " " + s.LastName
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", c.ID),
			c.StartDate.Local().Format("Mon 02.01. 15:04"),
			c.Description,
			c.Location,
			free,
			strings.Join(names, ", "),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
