package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var scheduleDate string

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the lesson schedule for a day",
	RunE:  runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&scheduleDate, "date", "", "Date in YYYY-MM-DD format (default today)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	day := time.Now()
	if scheduleDate != "" {
		parsed, err := time.Parse("2006-01-02", scheduleDate)
		if err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", scheduleDate)
		}
		day = parsed
	}

	ctx, cancel := signalContext(cmd.Context(), false)
	defer cancel()

	svc, err := newService(ctx, cfg, log, true)
	if err != nil {
		return err
	}

	lessons, err := svc.Schedule(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to fetch schedule: %w", err)
	}
	if len(lessons) == 0 {
		fmt.Printf("Geen lessen op %s.\n", day.Format("02-01-2006"))
		return nil
	}

	fmt.Printf("Rooster voor %s:\n\n", day.Format("02-01-2006"))
	for i := range lessons {
		lesson := &lessons[i]
		line := fmt.Sprintf("%s-%s  %-20s",
			lesson.Start.Format("15:04"), lesson.End.Format("15:04"), lesson.SubjectName())
		if room := lesson.RoomName(); room != "" {
			line += "  " + room
		}
		if teacher := lesson.TeacherName(); teacher != "" {
			line += "  " + teacher
		}
		switch {
		case lesson.Cancelled:
			line += "  [UITVAL]"
		case lesson.Modified:
			line += "  [WIJZIGING]"
		}
		if lesson.HasHomework() {
			line += "  (huiswerk)"
		}
		fmt.Println(line)
	}
	return nil
}
