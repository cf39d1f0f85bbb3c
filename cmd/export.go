package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/ical"
)

var (
	exportOutput   string
	exportDays     int
	exportHomework bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the schedule or homework as an iCalendar file",
	Long: `Write upcoming lessons (or homework deadlines with --homework) to an
.ics file that Apple Calendar, Google Calendar, and Outlook can import.
Event identifiers are stable, so re-running the export updates events in
place instead of duplicating them.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "magister.ics", "Output path for the .ics file")
	exportCmd.Flags().IntVar(&exportDays, "days", 14, "Number of days to export")
	exportCmd.Flags().BoolVar(&exportHomework, "homework", false, "Export homework deadlines as all-day events instead of lessons")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, cancel := signalContext(cmd.Context(), false)
	defer cancel()

	svc, err := newService(ctx, cfg, log, true)
	if err != nil {
		return err
	}

	start := time.Now()
	end := start.AddDate(0, 0, exportDays)

	var calendar string
	var count int
	if exportHomework {
		appointments, err := svc.ScheduleRange(ctx, start, end)
		if err != nil {
			return fmt.Errorf("failed to fetch homework: %w", err)
		}
		filtered := appointments[:0:0]
		for i := range appointments {
			if appointments[i].HasHomework() {
				filtered = append(filtered, appointments[i])
			}
		}
		calendar = ical.HomeworkCalendar(filtered, "Magister Huiswerk")
		count = len(filtered)
	} else {
		appointments, err := svc.ScheduleRange(ctx, start, end)
		if err != nil {
			return fmt.Errorf("failed to fetch schedule: %w", err)
		}
		calendar = ical.ScheduleCalendar(appointments, "Magister Rooster")
		count = len(appointments)
	}

	if err := ical.WriteFile(exportOutput, calendar); err != nil {
		return err
	}
	log.Success("Exported %d events to %s", count, exportOutput)
	return nil
}
